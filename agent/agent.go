package agent

import (
	"fmt"

	"github.com/hupe1980/realtimemesh/tool"
)

// Options configures an Agent. Use functional options with New to override
// defaults.
type Options struct {
	// Purpose is a one line description used by transfer tools pointing at
	// this agent.
	Purpose string
	// Instruction is rendered with the session values when the agent is
	// configured on the live model.
	Instruction Instruction
	// Tools are the agent's own tools in declaration order.
	Tools []tool.Tool
	// Handoffs lists the agents this agent may transfer to.
	Handoffs []string
	// Escalation is an optional out-of-band reasoning tool.
	Escalation tool.Tool
	// Voice selects the synthesized voice, empty for the provider default.
	Voice string
}

// Agent is an immutable agent definition. All getters return copies.
type Agent struct {
	name        string
	purpose     string
	instruction Instruction
	tools       []tool.Tool
	handoffs    []string
	escalation  tool.Tool
	voice       string
}

// New creates an agent definition.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful voice assistant.", name)),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		name:        name,
		purpose:     opts.Purpose,
		instruction: opts.Instruction,
		tools:       append([]tool.Tool(nil), opts.Tools...),
		handoffs:    append([]string(nil), opts.Handoffs...),
		escalation:  opts.Escalation,
		voice:       opts.Voice,
	}
}

// Name returns the unique agent name.
func (a *Agent) Name() string { return a.name }

// Purpose returns the agent's short description.
func (a *Agent) Purpose() string { return a.purpose }

// Instruction returns the instruction template or provider.
func (a *Agent) Instruction() Instruction { return a.instruction }

// Tools returns the agent's own tools.
func (a *Agent) Tools() []tool.Tool { return append([]tool.Tool(nil), a.tools...) }

// Handoffs returns the permitted handoff targets.
func (a *Agent) Handoffs() []string { return append([]string(nil), a.handoffs...) }

// Escalation returns the escalation tool, nil when none is configured.
func (a *Agent) Escalation() tool.Tool { return a.escalation }

// Voice returns the configured voice.
func (a *Agent) Voice() string { return a.voice }

// CanHandoff reports whether target is one of the agent's permitted edges.
func (a *Agent) CanHandoff(target string) bool {
	for _, h := range a.handoffs {
		if h == target {
			return true
		}
	}
	return false
}
