package agent

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/tool"
)

// ErrUnknownAgent is returned when a name does not resolve to an agent of the graph.
var ErrUnknownAgent = errors.New("unknown agent")

// Graph is a validated, immutable set of agents connected by handoff edges
// with a designated root. Cycles are allowed.
type Graph struct {
	root   string
	order  []string
	agents map[string]*Agent
	tools  map[string]*tool.Registry
}

// NewGraph validates agents and builds a graph rooted at root. All problems
// found are reported together.
func NewGraph(root string, agents ...*Agent) (*Graph, error) {
	var result *multierror.Error

	g := &Graph{
		root:   root,
		agents: make(map[string]*Agent, len(agents)),
		tools:  make(map[string]*tool.Registry, len(agents)),
	}

	for i, a := range agents {
		switch {
		case a == nil:
			result = multierror.Append(result, fmt.Errorf("agent #%d is nil", i))
			continue
		case a.Name() == "":
			result = multierror.Append(result, fmt.Errorf("agent #%d has an empty name", i))
			continue
		}
		if _, dup := g.agents[a.Name()]; dup {
			result = multierror.Append(result, fmt.Errorf("duplicate agent name %q", a.Name()))
			continue
		}
		g.agents[a.Name()] = a
		g.order = append(g.order, a.Name())
	}

	if _, ok := g.agents[root]; !ok {
		result = multierror.Append(result, fmt.Errorf("root agent %q: %w", root, ErrUnknownAgent))
	}

	for _, name := range g.order {
		a := g.agents[name]
		edgesOK := true
		seen := map[string]bool{}
		for _, target := range a.handoffs {
			switch {
			case target == name:
				result = multierror.Append(result, fmt.Errorf("agent %q lists itself as handoff target", name))
				edgesOK = false
			case g.agents[target] == nil:
				result = multierror.Append(result, fmt.Errorf("agent %q hands off to %q: %w", name, target, ErrUnknownAgent))
				edgesOK = false
			case seen[target]:
				result = multierror.Append(result, fmt.Errorf("agent %q lists handoff target %q twice", name, target))
				edgesOK = false
			}
			seen[target] = true
		}
		if !edgesOK {
			continue
		}
		reg, err := tool.NewRegistry(g.buildTools(a)...)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("agent %q: %w", name, err))
			continue
		}
		g.tools[name] = reg
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) buildTools(a *Agent) []tool.Tool {
	tools := a.Tools()
	if a.escalation != nil {
		tools = append(tools, a.escalation)
	}
	for _, target := range a.handoffs {
		tools = append(tools, tool.NewTransferTool(target, g.agents[target].Purpose()))
	}
	return tools
}

// Root returns the root agent.
func (g *Graph) Root() *Agent { return g.agents[g.root] }

// RootName returns the name of the root agent.
func (g *Graph) RootName() string { return g.root }

// Lookup returns the agent with the given name.
func (g *Graph) Lookup(name string) (*Agent, bool) {
	a, ok := g.agents[name]
	return a, ok
}

// Agents returns all agents, root first, then in breadth first order over
// handoff edges, then any agents not reachable from the root in
// declaration order.
func (g *Graph) Agents() []*Agent {
	names := g.Names()
	out := make([]*Agent, len(names))
	for i, n := range names {
		out[i] = g.agents[n]
	}
	return out
}

// Names returns agent names in the order used by Agents.
func (g *Graph) Names() []string {
	names := g.Reachable()
	visited := make(map[string]bool, len(names))
	for _, n := range names {
		visited[n] = true
	}
	for _, n := range g.order {
		if !visited[n] {
			names = append(names, n)
		}
	}
	return names
}

// Reachable returns the agents reachable from the root, root included, in
// breadth first order.
func (g *Graph) Reachable() []string {
	visited := map[string]bool{g.root: true}
	queue := []string{g.root}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		for _, next := range g.agents[cur].handoffs {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}

// CanHandoff reports whether from declares to as a permitted target.
func (g *Graph) CanHandoff(from, to string) bool {
	a, ok := g.agents[from]
	if !ok {
		return false
	}
	return a.CanHandoff(to)
}

// Reroot returns a graph sharing the same agents with name as effective root.
func (g *Graph) Reroot(name string) (*Graph, error) {
	if _, ok := g.agents[name]; !ok {
		return nil, fmt.Errorf("reroot to %q: %w", name, ErrUnknownAgent)
	}
	if name == g.root {
		return g, nil
	}
	ng := *g
	ng.root = name
	return &ng, nil
}

// ToolsFor returns the tool registry exposed to the live model while name is
// active: its own tools, its escalation tool and one transfer tool per edge.
func (g *Graph) ToolsFor(name string) (*tool.Registry, error) {
	reg, ok := g.tools[name]
	if !ok {
		return nil, fmt.Errorf("tools for %q: %w", name, ErrUnknownAgent)
	}
	return reg, nil
}

// SessionConfig renders the live model configuration for the named agent.
func (g *Graph) SessionConfig(name string, vars map[string]any) (core.SessionConfig, error) {
	a, ok := g.agents[name]
	if !ok {
		return core.SessionConfig{}, fmt.Errorf("session config for %q: %w", name, ErrUnknownAgent)
	}
	instructions, err := a.instruction.Resolve(vars)
	if err != nil {
		return core.SessionConfig{}, fmt.Errorf("render instructions for %q: %w", name, err)
	}
	specs, err := g.tools[name].Specs()
	if err != nil {
		return core.SessionConfig{}, fmt.Errorf("tool specs for %q: %w", name, err)
	}
	return core.SessionConfig{
		Agent:        name,
		Instructions: instructions,
		Tools:        specs,
		Voice:        a.voice,
	}, nil
}
