// Package tool implements the tool calling subsystem: tools with schema
// validated arguments, a per-agent registry, uniform error codes and a
// tagged-union Result that is delivered back to the live model.
package tool

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/internal/schema"
)

// Tool defines a capability an agent may invoke.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a parameter schema; arguments are validated before Call
//   - Report failures as errors, never by panicking
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns the object schema of the accepted arguments.
	Parameters() *jsonschema.Schema

	// Call executes the tool with already decoded and validated arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ResultDeclarer is implemented by tools that declare the shape of their
// success value. Execute validates results against it.
type ResultDeclarer interface {
	ResultSchema() *jsonschema.Schema
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = schema.ValidationError

// Error codes carried by ToolError.
const (
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
	CodeInvalidResult    = "INVALID_RESULT"
	CodePanic            = "PANIC"
	CodeCancelled        = "CANCELLED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Spec converts a tool into its provider-facing declaration.
func Spec(t Tool) (core.ToolSpec, error) {
	params, err := schema.ToMap(t.Parameters())
	if err != nil {
		return core.ToolSpec{}, fmt.Errorf("tool %s: %w", t.Name(), err)
	}
	return core.ToolSpec{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  params,
	}, nil
}
