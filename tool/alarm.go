package tool

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/observability"
)

// AlarmToolName is the name of the tool returned by NewAlarmTool.
const AlarmToolName = "sound_alarm"

// Urgency levels accepted by the alarm tool.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// AlarmHandler is invoked when the agent raises an alarm.
type AlarmHandler func(ctx context.Context, reason, urgency string) error

// AlarmToolOptions configures the alarm tool.
type AlarmToolOptions struct {
	Handler AlarmHandler
}

type alarmTool struct {
	handler AlarmHandler
}

// NewAlarmTool returns a tool that escalates a concern about the caller to a
// human. Each alarm is recorded as breadcrumb and observability event and
// handed to the optional handler.
func NewAlarmTool(optFns ...func(o *AlarmToolOptions)) Tool {
	opts := AlarmToolOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &alarmTool{handler: opts.Handler}
}

func (t *alarmTool) Name() string { return AlarmToolName }

func (t *alarmTool) Description() string {
	return "Sound an alarm to alert a human when the caller appears to be in distress or needs immediate help."
}

func (t *alarmTool) Parameters() *jsonschema.Schema {
	return schema.Object(
		schema.Required("reason", schema.String("Why the alarm is being raised.")),
		schema.Required("urgency", schema.Enum("How urgent the situation is.", UrgencyLow, UrgencyMedium, UrgencyHigh)),
	)
}

func (t *alarmTool) ResultSchema() *jsonschema.Schema {
	return schema.Object(
		schema.Required("status", schema.String("")),
		schema.Required("message", schema.String("")),
	)
}

func (t *alarmTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	reason, _ := args["reason"].(string)
	urgency, _ := args["urgency"].(string)

	tc.LogWarn("tool.alarm.raised", "reason", reason, "urgency", urgency, "agent", tc.AgentName())
	tc.AddBreadcrumb("alarm: "+urgency, map[string]any{"reason": reason, "urgency": urgency})
	tc.Emit(observability.EventAlarmRaised, observability.LevelWarning, map[string]any{"reason": reason, "urgency": urgency})

	if t.handler != nil {
		if err := t.handler(tc.Context(), reason, urgency); err != nil {
			return nil, fmt.Errorf("alarm handler: %w", err)
		}
	}

	return map[string]any{"status": "success", "message": "Alarm sounded: " + reason}, nil
}
