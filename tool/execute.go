package tool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/logging"
)

// Execute resolves call.Name in reg, decodes and validates the arguments and
// invokes the tool. It never panics: every failure mode is reported through
// the returned Result with a ToolError code.
func Execute(toolCtx *core.ToolContext, reg *Registry, call core.ToolCall) Result {
	start := time.Now()
	res := execute(toolCtx, reg, call)
	res.Duration = time.Since(start)

	var err error
	if res.Err != nil {
		err = res.Err
	}
	if ml, ok := toolCtx.Logger().(*logging.MeshLogger); ok {
		ml.LogToolCall(call.Name, res.Duration, res.OK(), err)
	} else {
		toolCtx.LogDebug("tool.call.executed", "tool", call.Name, "fc_id", call.ID, "duration_ms", res.Duration.Milliseconds(), "error", err != nil)
	}
	return res
}

func execute(toolCtx *core.ToolContext, reg *Registry, call core.ToolCall) (res Result) {
	impl, ok := reg.Lookup(call.Name)
	if !ok {
		return failure(call.ID, call.Name, &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("tool %s not found", call.Name),
			Code:    CodeUnknownTool,
		})
	}

	args, err := DecodeArguments(call.Arguments)
	if err != nil {
		return failure(call.ID, call.Name, &ToolError{
			Tool:    call.Name,
			Message: err.Error(),
			Code:    CodeInvalidArguments,
		})
	}

	if err := schema.Validate(impl.Parameters(), args); err != nil {
		toolCtx.LogWarn("tool.call.validation_failed", "tool", call.Name, "error", err.Error())
		return failure(call.ID, call.Name, &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		})
	}

	if err := toolCtx.Context().Err(); err != nil {
		return failure(call.ID, call.Name, &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeCancelled})
	}

	defer func() {
		if r := recover(); r != nil {
			toolCtx.LogError("tool.call.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			res = failure(call.ID, call.Name, &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("panic recovered: %v", r),
				Code:    CodePanic,
			})
		}
	}()

	value, err := impl.Call(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			if toolErr.Tool == "" {
				toolErr.Tool = call.Name
			}
			return failure(call.ID, call.Name, toolErr)
		}
		return failure(call.ID, call.Name, &ToolError{Tool: call.Name, Message: err.Error(), Code: CodeExecution})
	}

	if rd, ok := impl.(ResultDeclarer); ok && rd.ResultSchema() != nil {
		if err := validateResult(rd, value); err != nil {
			return failure(call.ID, call.Name, &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("result does not match declared schema: %v", err),
				Code:    CodeInvalidResult,
			})
		}
	}

	return Result{CallID: call.ID, Tool: call.Name, Value: value}
}

// DecodeArguments parses the serialized argument object of a tool call.
// An empty string decodes to an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func validateResult(rd ResultDeclarer, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	return schema.Validate(rd.ResultSchema(), generic)
}
