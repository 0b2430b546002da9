package testutil

import (
	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/tool"
)

// GraphBuilder helps construct agent graphs with fluent chaining for tests.
// Example:
//
//	g := NewGraphBuilder("a").Agent("a", "b").Agent("b").MustBuild()
type GraphBuilder struct {
	root   string
	agents []*agent.Agent
}

// NewGraphBuilder creates a builder rooted at root.
func NewGraphBuilder(root string) *GraphBuilder { return &GraphBuilder{root: root} }

// Agent adds an agent with the given handoff targets (chainable).
func (b *GraphBuilder) Agent(name string, handoffs ...string) *GraphBuilder {
	return b.AgentWith(name, func(o *agent.Options) { o.Handoffs = handoffs })
}

// AgentWith adds an agent configured by optFns (chainable).
func (b *GraphBuilder) AgentWith(name string, optFns ...func(o *agent.Options)) *GraphBuilder {
	b.agents = append(b.agents, agent.New(name, optFns...))
	return b
}

// Build validates and returns the graph.
func (b *GraphBuilder) Build() (*agent.Graph, error) {
	return agent.NewGraph(b.root, b.agents...)
}

// MustBuild is like Build but panics on error.
func (b *GraphBuilder) MustBuild() *agent.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// StaticTool returns a tool with a single required string parameter "query"
// that always returns result.
func StaticTool(name string, result any) tool.Tool {
	return tool.NewFunctionTool(name, "Returns a fixed result.",
		schema.Object(schema.Required("query", schema.String("Lookup query."))),
		func(*core.ToolContext, map[string]any) (any, error) { return result, nil },
	)
}
