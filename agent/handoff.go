package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
)

// ErrHandoffRejected is wrapped by every HandoffError.
var ErrHandoffRejected = errors.New("handoff rejected")

// Source identifies who initiated a handoff.
type Source string

const (
	// SourceModel marks a handoff requested by the live model through a
	// transfer tool or a provider handoff event.
	SourceModel Source = "model"
	// SourceOperator marks a manual agent switch.
	SourceOperator Source = "operator"
)

// HandoffError reports a rejected handoff. The active agent is unchanged.
type HandoffError struct {
	From   string
	To     string
	Source Source
	Reason string
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("handoff from %q to %q (%s) rejected: %s", e.From, e.To, e.Source, e.Reason)
}

func (e *HandoffError) Unwrap() error { return ErrHandoffRejected }

// Transition describes an accepted handoff and the side effects the session
// must apply.
type Transition struct {
	From   string
	To     string
	Source Source
	// Continue asks the session to trigger a synthetic turn so the new agent
	// proceeds without waiting for user input.
	Continue bool
	// Config is the session configuration of the new agent.
	Config core.SessionConfig
}

// HandoffOptions configures a HandoffController.
type HandoffOptions struct {
	// AutoContinueFirstHandoff triggers a synthetic turn after the first
	// model initiated handoff of the session. Default true.
	AutoContinueFirstHandoff bool
	// Vars are rendered into agent instructions.
	Vars map[string]any
	// Initial selects the initially active agent; the graph is re-rooted
	// on it. Empty means the graph root.
	Initial  string
	Logger   logging.Logger
	Observer observability.Observer
}

// HandoffController owns the active agent pointer of one session.
type HandoffController struct {
	mu            sync.RWMutex
	graph         *Graph
	active        string
	modelHandoffs int
	opts          HandoffOptions
}

// NewHandoffController creates a controller positioned on the graph root or
// on Initial when set.
func NewHandoffController(graph *Graph, optFns ...func(o *HandoffOptions)) (*HandoffController, error) {
	opts := HandoffOptions{
		AutoContinueFirstHandoff: true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = observability.NoOpObserver{}
	}

	if opts.Initial != "" {
		g, err := graph.Reroot(opts.Initial)
		if err != nil {
			return nil, err
		}
		graph = g
	}

	return &HandoffController{graph: graph, active: graph.RootName(), opts: opts}, nil
}

// Active returns the active agent.
func (c *HandoffController) Active() *Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.agents[c.active]
}

// ActiveName returns the name of the active agent.
func (c *HandoffController) ActiveName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Graph returns the effective graph. It changes when an operator selects an agent.
func (c *HandoffController) Graph() *Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// InitialConfig renders the session configuration of the active agent.
func (c *HandoffController) InitialConfig() (core.SessionConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.SessionConfig(c.active, c.opts.Vars)
}

// Transfer moves the active pointer from the issuing agent to target.
// Model transfers must follow one of from's declared edges. Operator
// transfers are delegated to Select.
func (c *HandoffController) Transfer(ctx context.Context, from, target string, source Source) (Transition, error) {
	if source == SourceOperator {
		return c.Select(ctx, target)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.graph.agents[target]; !ok {
		return Transition{}, c.reject(ctx, from, target, source, "unknown agent")
	}
	if !c.graph.CanHandoff(from, target) {
		return Transition{}, c.reject(ctx, from, target, source, fmt.Sprintf("%q is not a permitted target of %q", target, from))
	}

	cfg, err := c.graph.SessionConfig(target, c.opts.Vars)
	if err != nil {
		return Transition{}, c.reject(ctx, from, target, source, err.Error())
	}

	if from != c.active {
		c.opts.Logger.Warn("agent.handoff.stale_issuer", "issuer", from, "active", c.active, "to_agent", target)
	}

	c.modelHandoffs++
	t := Transition{
		From:     c.active,
		To:       target,
		Source:   source,
		Continue: c.opts.AutoContinueFirstHandoff && c.modelHandoffs == 1,
		Config:   cfg,
	}
	c.active = target
	c.applied(ctx, t)
	return t, nil
}

// Select performs an operator switch: the graph is re-rooted on name so its
// transfer tools become authoritative. Operator switches are not restricted
// to declared edges and never trigger a synthetic turn.
func (c *HandoffController) Select(ctx context.Context, name string) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.graph.Reroot(name)
	if err != nil {
		return Transition{}, c.reject(ctx, c.active, name, SourceOperator, "unknown agent")
	}
	cfg, err := g.SessionConfig(name, c.opts.Vars)
	if err != nil {
		return Transition{}, c.reject(ctx, c.active, name, SourceOperator, err.Error())
	}

	t := Transition{From: c.active, To: name, Source: SourceOperator, Config: cfg}
	c.graph = g
	c.active = name
	c.applied(ctx, t)
	return t, nil
}

func (c *HandoffController) reject(ctx context.Context, from, to string, source Source, reason string) error {
	if ml, ok := c.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogHandoff(from, to, string(source), false)
	} else {
		c.opts.Logger.Warn("agent.handoff.rejected", "from_agent", from, "to_agent", to, "source", source, "reason", reason)
	}
	observability.Emit(ctx, c.opts.Observer, observability.EventHandoffRejected, observability.LevelWarning, "agent", map[string]any{
		"from": from, "to": to, "source": string(source), "reason": reason,
	})
	return &HandoffError{From: from, To: to, Source: source, Reason: reason}
}

func (c *HandoffController) applied(ctx context.Context, t Transition) {
	if ml, ok := c.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogHandoff(t.From, t.To, string(t.Source), true)
	} else {
		c.opts.Logger.Info("agent.handoff.applied", "from_agent", t.From, "to_agent", t.To, "source", t.Source, "continue", t.Continue)
	}
	observability.Emit(ctx, c.opts.Observer, observability.EventHandoffApplied, observability.LevelInfo, "agent", map[string]any{
		"from": t.From, "to": t.To, "source": string(t.Source), "continue": t.Continue,
	})
}
