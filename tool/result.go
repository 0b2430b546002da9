package tool

import (
	"encoding/json"
	"time"
)

// Result is the outcome of one tool call: exactly one of Value or Err is
// meaningful, selected by Err being nil.
type Result struct {
	CallID   string
	Tool     string
	Value    any
	Err      *ToolError
	Duration time.Duration
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Output serializes the result for delivery to the live model.
func (r Result) Output() string {
	var payload any = r.Value
	if r.Err != nil {
		payload = map[string]any{"error": map[string]any{"code": r.Err.Code, "message": r.Err.Message}}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"error": map[string]any{"code": CodeInvalidResult, "message": err.Error()}})
	}
	return string(b)
}

// Data returns the breadcrumb payload for the result.
func (r Result) Data() map[string]any {
	if r.Err != nil {
		return map[string]any{"error": map[string]any{"code": r.Err.Code, "message": r.Err.Message}}
	}
	return map[string]any{"result": r.Value}
}

func failure(callID, name string, err *ToolError) Result {
	return Result{CallID: callID, Tool: name, Err: err}
}
