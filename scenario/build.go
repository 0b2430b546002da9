package scenario

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/model"
	"github.com/hupe1980/realtimemesh/supervisor"
	"github.com/hupe1980/realtimemesh/tool"
)

// ErrNoReasoningModel is reported when an agent enables escalation but no
// reasoning model was supplied.
var ErrNoReasoningModel = errors.New("escalation requires a reasoning model")

// BuildOptions configures Build.
type BuildOptions struct {
	// Tools are application tools scenarios may reference by name.
	Tools []tool.Tool
	// Model backs the escalation tool.
	Model model.Model
	// AlarmHandler receives alarms raised through the sound_alarm tool.
	AlarmHandler tool.AlarmHandler
	Logger       logging.Logger
}

// Build validates sc, resolves tool references and returns the agent graph.
func Build(sc *Scenario, optFns ...func(o *BuildOptions)) (*agent.Graph, error) {
	opts := BuildOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}

	catalog, err := newCatalog(opts)
	if err != nil {
		return nil, err
	}

	var result *multierror.Error

	escalation, err := buildEscalation(sc, catalog, opts)
	if err != nil {
		result = multierror.Append(result, err)
	}

	agents := make([]*agent.Agent, 0, len(sc.Agents))
	for _, spec := range sc.Agents {
		tools, err := catalog.resolve(spec.Tools)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("agent %q: %w", spec.Name, err))
		}

		optFns := []func(o *agent.Options){func(o *agent.Options) {
			o.Purpose = spec.Purpose
			o.Voice = spec.Voice
			o.Handoffs = spec.Handoffs
			o.Tools = tools
		}}
		if spec.Instructions != "" {
			instructions := spec.Instructions
			optFns = append(optFns, func(o *agent.Options) { o.Instruction = agent.NewInstructionFromText(instructions) })
		}
		if spec.Escalation && escalation != nil {
			optFns = append(optFns, func(o *agent.Options) { o.Escalation = escalation })
		}
		agents = append(agents, agent.New(spec.Name, optFns...))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	g, err := agent.NewGraph(sc.Root, agents...)
	if err != nil {
		return nil, err
	}

	opts.Logger.Debug("scenario.graph.built", "scenario", sc.Name, "root", g.RootName(), "agents", g.Names())
	return g, nil
}

func buildEscalation(sc *Scenario, catalog *catalog, opts BuildOptions) (tool.Tool, error) {
	needed := false
	for _, a := range sc.Agents {
		needed = needed || a.Escalation
	}
	if !needed {
		return nil, nil
	}
	if opts.Model == nil {
		return nil, ErrNoReasoningModel
	}

	cfg := sc.Supervisor
	if cfg == nil {
		cfg = &Supervisor{}
	}

	tools, err := catalog.resolve(cfg.Tools)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	reg, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	timeout, err := cfg.timeout()
	if err != nil {
		return nil, err
	}

	return supervisor.New(opts.Model, func(o *supervisor.Options) {
		o.Tools = reg
		if cfg.MaxIterations > 0 {
			o.MaxIterations = cfg.MaxIterations
		}
		if timeout > 0 {
			o.Timeout = timeout
		}
		if cfg.Instructions != "" {
			o.Instructions = cfg.Instructions
		}
		if cfg.Model != "" {
			o.Model = cfg.Model
		}
		if cfg.Fallback != "" {
			o.FallbackMessage = cfg.Fallback
		}
	}), nil
}

// catalog maps tool names usable in scenarios to tools.
type catalog struct {
	tools map[string]tool.Tool
}

func newCatalog(opts BuildOptions) (*catalog, error) {
	alarm := tool.NewAlarmTool(func(o *tool.AlarmToolOptions) {
		o.Handler = opts.AlarmHandler
	})
	c := &catalog{tools: map[string]tool.Tool{
		tool.DisconnectToolName: tool.NewDisconnectTool(),
		tool.AlarmToolName:      alarm,
	}}

	var result *multierror.Error
	for _, t := range opts.Tools {
		if t == nil {
			continue
		}
		if _, exists := c.tools[t.Name()]; exists {
			result = multierror.Append(result, fmt.Errorf("tool %q is already defined", t.Name()))
			continue
		}
		c.tools[t.Name()] = t
	}
	return c, result.ErrorOrNil()
}

func (c *catalog) resolve(names []string) ([]tool.Tool, error) {
	var result *multierror.Error
	tools := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		t, ok := c.tools[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("unknown tool %q", name))
			continue
		}
		tools = append(tools, t)
	}
	return tools, result.ErrorOrNil()
}
