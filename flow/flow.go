// Package flow mediates tool calls issued by the live model.
//
// The Mediator executes one call at a time against the tool set of the agent
// that issued it, records "function call" and "function call result"
// breadcrumbs around every invocation, delivers the result to the transport
// and applies any handoff or disconnect the tool requested.
package flow

import (
	"context"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/tool"
)

// Sender delivers outbound commands to the realtime transport.
type Sender interface {
	Send(ctx context.Context, cmd core.Command) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, cmd core.Command) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, cmd core.Command) error { return f(ctx, cmd) }

// FunctionExecutor runs a single tool call. Implementations must respect the
// tool context cancellation and never panic.
type FunctionExecutor interface {
	Execute(toolCtx *core.ToolContext, reg *tool.Registry, call core.ToolCall) tool.Result
}

// FunctionExecutorFunc adapts a function to the FunctionExecutor interface.
type FunctionExecutorFunc func(toolCtx *core.ToolContext, reg *tool.Registry, call core.ToolCall) tool.Result

// Execute implements FunctionExecutor.
func (f FunctionExecutorFunc) Execute(toolCtx *core.ToolContext, reg *tool.Registry, call core.ToolCall) tool.Result {
	return f(toolCtx, reg, call)
}
