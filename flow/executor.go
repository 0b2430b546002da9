package flow

import (
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/tool"
)

// FunctionExecutorConfig configures the default executor.
type FunctionExecutorConfig struct {
	LogStartEvents bool // log a start line per function
}

// sequentialFunctionExecutor is the default implementation. It executes in
// the caller's goroutine so ordering is the caller's ordering.
type sequentialFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewSequentialFunctionExecutor constructs the default executor.
func NewSequentialFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &sequentialFunctionExecutor{cfg: cfg}
}

func (e *sequentialFunctionExecutor) Execute(toolCtx *core.ToolContext, reg *tool.Registry, call core.ToolCall) tool.Result {
	if e.cfg.LogStartEvents {
		toolCtx.LogInfo("agent.function.start", "agent", call.Agent, "function", call.Name, "function_call_id", call.ID)
	}
	toolCtx.Emit(observability.EventToolCallStarted, observability.LevelVerbose, nil)

	res := tool.Execute(toolCtx, reg, call)

	toolCtx.LogInfo(
		"agent.function.executed",
		"agent", call.Agent,
		"function", call.Name,
		"duration_ms", res.Duration.Milliseconds(),
		"error", !res.OK(),
	)

	if res.OK() {
		toolCtx.Emit(observability.EventToolCallCompleted, observability.LevelInfo, map[string]any{
			"duration_ms": res.Duration.Milliseconds(),
		})
	} else {
		toolCtx.Emit(observability.EventToolCallFailed, observability.LevelWarning, map[string]any{
			"duration_ms": res.Duration.Milliseconds(),
			"code":        res.Err.Code,
			"error":       res.Err.Message,
		})
	}
	return res
}
