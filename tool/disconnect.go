package tool

import (
	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
)

// DisconnectToolName is the name of the tool returned by NewDisconnectTool.
const DisconnectToolName = "disconnect"

type disconnectTool struct{}

// NewDisconnectTool returns a tool the agent calls to end the conversation.
// The session closes after the result has been delivered.
func NewDisconnectTool() Tool { return disconnectTool{} }

func (disconnectTool) Name() string { return DisconnectToolName }

func (disconnectTool) Description() string {
	return "End the conversation once the caller has said goodbye or asked to hang up."
}

func (disconnectTool) Parameters() *jsonschema.Schema {
	return schema.Object(schema.Optional("reason", schema.String("Short reason for ending the conversation.")))
}

func (disconnectTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	reason, _ := args["reason"].(string)
	if reason == "" {
		reason = "agent requested disconnect"
	}
	tc.RequestDisconnect(reason)
	return map[string]any{"status": "disconnecting", "reason": reason}, nil
}
