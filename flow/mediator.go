package flow

import (
	"errors"
	"fmt"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/tool"
)

// CodeHandoffRejected marks a transfer tool result whose handoff was refused
// by the handoff controller.
const CodeHandoffRejected = "HANDOFF_REJECTED"

// Breadcrumb titles recorded by the mediator.
const (
	TitleFunctionCall       = "function call: "
	TitleFunctionCallResult = "function call result: "
	TitleAgentSwitch        = "agent switch: "
	TitleHandoffRejected    = "error: handoff rejected"
)

// Outcome summarizes what the mediator did for one call.
type Outcome struct {
	Result tool.Result
	// Transition is set when the call switched the active agent.
	Transition *agent.Transition
	// HandoffErr is set when a requested handoff was rejected.
	HandoffErr error
	// Disconnect carries the reason when the tool asked to end the session.
	Disconnect *string
}

// MediatorOptions configures a Mediator.
type MediatorOptions struct {
	Executor FunctionExecutor
}

// Mediator executes tool calls and applies their orchestration side effects.
// Handle, Handoff and Select must be serialized by the caller so results stay
// in arrival order and the last reconfiguration matches the active agent.
type Mediator struct {
	handoffs *agent.HandoffController
	sender   Sender
	executor FunctionExecutor
}

// NewMediator creates a mediator bound to a session's handoff controller and
// outbound sender.
func NewMediator(handoffs *agent.HandoffController, sender Sender, optFns ...func(o *MediatorOptions)) *Mediator {
	opts := MediatorOptions{
		Executor: NewSequentialFunctionExecutor(FunctionExecutorConfig{}),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Mediator{handoffs: handoffs, sender: sender, executor: opts.Executor}
}

// Handle executes call against the tools of the agent that issued it,
// delivers the result and applies any requested handoff or disconnect.
// The returned error reports transport failures only; tool failures are
// carried by the Outcome result.
//
// Every result is followed by a turn trigger except after a disconnect and
// after an applied transfer. A transfer triggers a turn only when the
// transition asks to continue, which is the first model initiated handoff of
// a session; later transfers wait for the caller to speak.
func (m *Mediator) Handle(runCtx *core.RunContext, call core.ToolCall) (Outcome, error) {
	if call.Agent == "" {
		call.Agent = m.handoffs.ActiveName()
	}

	runCtx.AddBreadcrumb(TitleFunctionCall+call.Name, map[string]any{
		"call_id":   call.ID,
		"agent":     call.Agent,
		"arguments": breadcrumbArguments(call.Arguments),
	})

	// A lookup failure leaves reg nil, which the executor reports as an
	// unknown tool.
	reg, err := m.handoffs.Graph().ToolsFor(call.Agent)
	if err != nil {
		runCtx.LogWarn("flow.tools.unavailable", "agent", call.Agent, "error", err.Error())
	}

	toolCtx := core.NewToolContext(runCtx, call)
	res := m.executor.Execute(toolCtx, reg, call)
	actions := toolCtx.Actions()

	var out Outcome
	if res.OK() && actions.TransferToAgent != nil {
		tr, err := m.handoffs.Transfer(runCtx.Context, call.Agent, *actions.TransferToAgent, agent.SourceModel)
		if err != nil {
			m.recordRejection(runCtx, err)
			out.HandoffErr = err
			res = tool.Result{
				CallID:   res.CallID,
				Tool:     res.Tool,
				Err:      tool.NewToolError(call.Name, err.Error(), CodeHandoffRejected),
				Duration: res.Duration,
			}
		} else {
			out.Transition = &tr
		}
	}
	if res.OK() && actions.Disconnect != nil {
		out.Disconnect = actions.Disconnect
	}
	out.Result = res

	data := res.Data()
	data["call_id"] = call.ID
	runCtx.AddBreadcrumb(TitleFunctionCallResult+call.Name, data)

	if err := m.send(runCtx, core.ToolCallResult{CallID: call.ID, Output: res.Output()}); err != nil {
		return out, err
	}

	switch {
	case out.Transition != nil:
		return out, m.apply(runCtx, *out.Transition)
	case out.Disconnect != nil:
		return out, nil
	default:
		return out, m.send(runCtx, core.TurnTrigger{})
	}
}

// Handoff applies a handoff requested by the provider outside of a tool call.
// The issuing agent is the one active when the request was observed.
func (m *Mediator) Handoff(runCtx *core.RunContext, from, target string) (Outcome, error) {
	if from == "" {
		from = m.handoffs.ActiveName()
	}
	tr, err := m.handoffs.Transfer(runCtx.Context, from, target, agent.SourceModel)
	if err != nil {
		m.recordRejection(runCtx, err)
		return Outcome{HandoffErr: err}, nil
	}
	return Outcome{Transition: &tr}, m.apply(runCtx, tr)
}

// Select performs an operator initiated agent switch. No synthetic turn is
// triggered.
func (m *Mediator) Select(runCtx *core.RunContext, name string) (agent.Transition, error) {
	tr, err := m.handoffs.Select(runCtx.Context, name)
	if err != nil {
		m.recordRejection(runCtx, err)
		return agent.Transition{}, err
	}
	return tr, m.apply(runCtx, tr)
}

func (m *Mediator) apply(runCtx *core.RunContext, tr agent.Transition) error {
	if err := m.send(runCtx, core.SessionReconfigure{Config: tr.Config}); err != nil {
		return err
	}
	runCtx.AddBreadcrumb(TitleAgentSwitch+tr.To, map[string]any{
		"from":   tr.From,
		"to":     tr.To,
		"source": string(tr.Source),
		"tools":  tr.Config.ToolNames(),
	})
	if tr.Continue {
		return m.send(runCtx, core.TurnTrigger{})
	}
	return nil
}

func (m *Mediator) recordRejection(runCtx *core.RunContext, err error) {
	data := map[string]any{"error": err.Error()}
	var herr *agent.HandoffError
	if errors.As(err, &herr) {
		data["from"] = herr.From
		data["to"] = herr.To
		data["source"] = string(herr.Source)
		data["reason"] = herr.Reason
	}
	runCtx.AddBreadcrumb(TitleHandoffRejected, data)
}

func (m *Mediator) send(runCtx *core.RunContext, cmd core.Command) error {
	if err := m.sender.Send(runCtx.Context, cmd); err != nil {
		runCtx.LogError("flow.send.failed", "command", string(cmd.Type()), "error", err.Error())
		return fmt.Errorf("send %s: %w", cmd.Type(), err)
	}
	return nil
}

func breadcrumbArguments(raw string) any {
	args, err := tool.DecodeArguments(raw)
	if err != nil {
		return raw
	}
	return args
}
