package tool

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
)

// TransferPrefix is the name prefix of generated handoff tools.
const TransferPrefix = "transfer_to_"

// TransferToolName returns the handoff tool name for target.
func TransferToolName(target string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(target) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return TransferPrefix + b.String()
}

// transferTool requests a handoff to one fixed target agent.
type transferTool struct {
	target      string
	description string
}

// NewTransferTool constructs the handoff tool for one permitted edge.
func NewTransferTool(target, purpose string) Tool {
	desc := fmt.Sprintf("Transfer the conversation to the %s agent.", target)
	if purpose != "" {
		desc += " " + purpose
	}
	return &transferTool{target: target, description: desc}
}

func (t *transferTool) Name() string { return TransferToolName(t.target) }

func (t *transferTool) Description() string { return t.description }

// Target returns the agent the tool hands off to.
func (t *transferTool) Target() string { return t.target }

func (t *transferTool) Parameters() *jsonschema.Schema {
	return schema.Object(
		schema.Required("rationale_for_transfer", schema.String("The reasoning why this transfer is needed.")),
		schema.Optional("conversation_context", schema.String("Relevant context from the conversation that will help the recipient perform the correct action.")),
	)
}

func (t *transferTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	tc.TransferToAgent(t.target)
	return map[string]any{"destination_agent": t.target, "did_transfer": true}, nil
}

// TransferTarget reports the target agent if t is a handoff tool.
func TransferTarget(t Tool) (string, bool) {
	tt, ok := t.(*transferTool)
	if !ok {
		return "", false
	}
	return tt.target, true
}
