package core

import (
	"context"

	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
)

// ToolCall is a tool invocation requested by the live model, stamped with
// the agent that was active when it was issued.
type ToolCall struct {
	ID        string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Agent     string `json:"agent"`
}

// ToolActions are orchestration signals raised by a tool during its call.
type ToolActions struct {
	TransferToAgent *string
	Disconnect      *string
}

// ToolContext provides the surface a tool implementation may use: the
// cancellation context, caller Values, transcript access and orchestration
// signals. Signals are accumulated and applied by the mediator after the
// call returns.
type ToolContext struct {
	runCtx  *RunContext
	call    ToolCall
	actions ToolActions

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext.
func NewToolContext(runCtx *RunContext, call ToolCall) *ToolContext {
	return &ToolContext{
		runCtx:        runCtx,
		call:          call,
		loggerAdapter: newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// SessionID returns the session the call belongs to.
func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the provider call id.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name of the invoked tool.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// AgentName returns the agent that issued the call.
func (tc *ToolContext) AgentName() string { return tc.call.Agent }

// Values returns the caller supplied context map. It is shared by reference
// across all tool calls of the session.
func (tc *ToolContext) Values() map[string]any { return tc.runCtx.Values }

// Value looks up a single caller supplied value.
func (tc *ToolContext) Value(key string) (any, bool) {
	v, ok := tc.runCtx.Values[key]
	return v, ok
}

// Transcript returns a snapshot of the full transcript.
func (tc *ToolContext) Transcript() []Item {
	if tc.runCtx.Transcript == nil {
		return nil
	}
	return tc.runCtx.Transcript.Snapshot()
}

// Messages returns the transcript messages, breadcrumbs excluded.
func (tc *ToolContext) Messages() []Item {
	if tc.runCtx.Transcript == nil {
		return nil
	}
	return tc.runCtx.Transcript.Messages()
}

// AddBreadcrumb records a breadcrumb in the transcript.
func (tc *ToolContext) AddBreadcrumb(title string, data map[string]any) string {
	return tc.runCtx.AddBreadcrumb(title, data)
}

// Emit publishes an observability event tagged with the call.
func (tc *ToolContext) Emit(typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["tool"] = tc.call.Name
	data["call_id"] = tc.call.ID
	data["agent"] = tc.call.Agent
	tc.runCtx.Emit(typ, level, "tool", data)
}

// TransferToAgent signals the mediator to hand control to another agent.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.actions.TransferToAgent = &name
	tc.LogInfo("tool.transfer.request", "from_agent", tc.AgentName(), "to_agent", name, "function_call_id", tc.call.ID)
}

// RequestDisconnect asks the session to close once the result is delivered.
func (tc *ToolContext) RequestDisconnect(reason string) {
	tc.actions.Disconnect = &reason
	tc.LogInfo("tool.disconnect.request", "agent", tc.AgentName(), "reason", reason, "function_call_id", tc.call.ID)
}

// Actions returns the signals accumulated so far.
func (tc *ToolContext) Actions() ToolActions { return tc.actions }

// RunContext returns the parent run context.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

// WithContext returns a copy bound to ctx sharing the call and the
// accumulated actions of the receiver at the time of the call.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	c := *tc
	c.runCtx = tc.runCtx.WithContext(ctx)
	return &c
}

// Nested derives a context for a tool invoked on behalf of this call, for
// example by the escalation loop. Actions start empty.
func (tc *ToolContext) Nested(call ToolCall) *ToolContext {
	if call.Agent == "" {
		call.Agent = tc.call.Agent
	}
	return &ToolContext{
		runCtx:        tc.runCtx,
		call:          call,
		loggerAdapter: tc.loggerAdapter,
	}
}
