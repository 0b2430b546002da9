package tool

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
)

// FunctionTool exposes a plain Go function as a tool.
//
// It validates arguments against its parameter schema before invoking the
// function and normalizes failures into *ToolError:
//
//	VALIDATION_ERROR -> schema / argument mismatch
//	EXECUTION_ERROR  -> the function returned a plain error
//	(custom codes are preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name         string
	description  string
	parameters   *jsonschema.Schema
	resultSchema *jsonschema.Schema
	fn           func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	// ResultSchema declares the shape of the success value.
	ResultSchema *jsonschema.Schema
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	lookup := tool.NewFunctionTool(
//	  "lookup_customer",
//	  "Look up a customer by phone number",
//	  schema.Object(schema.Required("phone", &jsonschema.Schema{Type: "string", Pattern: `^\+?[0-9]{7,15}$`})),
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return map[string]any{"success": true}, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters *jsonschema.Schema,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if parameters == nil {
		parameters = schema.Object()
	}
	return &FunctionTool{
		name:         name,
		description:  description,
		parameters:   parameters,
		resultSchema: opts.ResultSchema,
		fn:           fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct.
//
// Example:
//
//	type LookupArgs struct {
//	  Phone string `json:"phone" jsonschema:"pattern=^[0-9]+$,description=Caller phone number"`
//	}
//
//	lookup := tool.NewFunctionToolFromStruct("lookup_customer", "Look up a customer", LookupArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, schema.Reflect(structType), fn, optFns...)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() *jsonschema.Schema { return t.parameters }

// ResultSchema returns the declared result schema, or nil.
func (t *FunctionTool) ResultSchema() *jsonschema.Schema { return t.resultSchema }

// Call validates args then invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := schema.Validate(t.parameters, args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
