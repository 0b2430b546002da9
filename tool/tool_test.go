package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/history"
	"github.com/hupe1980/realtimemesh/internal/schema"
)

func dummyToolContext(call core.ToolCall) (*core.ToolContext, *history.Transcript) {
	tr := history.NewTranscript()
	rc := core.NewRunContext(context.Background(), "sess-1", map[string]any{}, tr, nil, nil)
	return core.NewToolContext(rc, call), tr
}

type sumArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func sumTool() *FunctionTool {
	return NewFunctionToolFromStruct("sum", "Add numbers", sumArgs{}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	tc, _ := dummyToolContext(core.ToolCall{ID: "fc1", Name: "sum"})
	result, err := sumTool().Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	tc, _ := dummyToolContext(core.ToolCall{ID: "fc2", Name: "sum"})
	_, err := sumTool().Call(tc, map[string]any{"a": 1.0})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	tc, _ := dummyToolContext(core.ToolCall{ID: "fc3", Name: "fail"})
	_, err := execTool.Call(tc, map[string]any{})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, CodeExecution, toolErr.Code)
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("lookup", "not found", CodeExecution)
	assert.Equal(t, "tool error [EXECUTION_ERROR] in lookup: not found", err.Error())
	assert.Equal(t, "tool error in lookup: oops", (&ToolError{Tool: "lookup", Message: "oops"}).Error())
}

// -------------------- Registry & Execute Tests --------------------

func TestRegistry_DuplicateName(t *testing.T) {
	_, err := NewRegistry(sumTool(), sumTool())
	assert.Error(t, err)

	reg, err := NewRegistry(sumTool(), nil, NewDisconnectTool())
	require.NoError(t, err)
	assert.Equal(t, []string{"sum", DisconnectToolName}, reg.Names())

	specs, err := reg.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "object", specs[0].Parameters["type"])
}

func TestExecute_ErrorCodes(t *testing.T) {
	panicky := NewFunctionTool("panicky", "Panics", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		panic("kaboom")
	})
	custom := NewFunctionTool("custom", "Custom error", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, &ToolError{Message: "no such customer", Code: "NOT_FOUND"}
	})
	reg, err := NewRegistry(sumTool(), panicky, custom)
	require.NoError(t, err)

	tests := []struct {
		name string
		call core.ToolCall
		code string
	}{
		{"unknown tool", core.ToolCall{ID: "1", Name: "missing"}, CodeUnknownTool},
		{"invalid json", core.ToolCall{ID: "2", Name: "sum", Arguments: "{not json"}, CodeInvalidArguments},
		{"schema mismatch", core.ToolCall{ID: "3", Name: "sum", Arguments: `{"a":"x","b":1}`}, CodeValidation},
		{"panic", core.ToolCall{ID: "4", Name: "panicky"}, CodePanic},
		{"custom code preserved", core.ToolCall{ID: "5", Name: "custom"}, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, _ := dummyToolContext(tt.call)
			var res Result
			assert.NotPanics(t, func() { res = Execute(tc, reg, tt.call) })
			require.False(t, res.OK())
			assert.Equal(t, tt.code, res.Err.Code)
			assert.Equal(t, tt.call.ID, res.CallID)
			assert.Contains(t, res.Output(), tt.code)
		})
	}
}

func TestExecute_Success(t *testing.T) {
	reg, err := NewRegistry(sumTool())
	require.NoError(t, err)

	call := core.ToolCall{ID: "c1", Name: "sum", Arguments: `{"a":1,"b":2}`}
	tc, _ := dummyToolContext(call)
	res := Execute(tc, reg, call)

	require.True(t, res.OK())
	assert.Equal(t, 3.0, res.Value)
	assert.Equal(t, "3", res.Output())
	assert.Equal(t, map[string]any{"result": 3.0}, res.Data())
}

func TestExecute_CancelledContext(t *testing.T) {
	reg, _ := NewRegistry(sumTool())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc := core.NewRunContext(ctx, "s", nil, nil, nil, nil)
	call := core.ToolCall{ID: "c1", Name: "sum", Arguments: `{"a":1,"b":2}`}
	res := Execute(core.NewToolContext(rc, call), reg, call)

	require.False(t, res.OK())
	assert.Equal(t, CodeCancelled, res.Err.Code)
}

func TestExecute_DeclaredResultSchema(t *testing.T) {
	resultSchema := schema.Object(schema.Required("success", &jsonschema.Schema{Type: "boolean"}))
	good := NewFunctionTool("good", "", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return map[string]any{"success": true}, nil
	}, func(o *FunctionToolOptions) { o.ResultSchema = resultSchema })
	bad := NewFunctionTool("bad", "", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return map[string]any{"ok": "yes"}, nil
	}, func(o *FunctionToolOptions) { o.ResultSchema = resultSchema })

	reg, err := NewRegistry(good, bad)
	require.NoError(t, err)

	tc, _ := dummyToolContext(core.ToolCall{ID: "1", Name: "good"})
	assert.True(t, Execute(tc, reg, core.ToolCall{ID: "1", Name: "good"}).OK())

	res := Execute(tc, reg, core.ToolCall{ID: "2", Name: "bad"})
	require.False(t, res.OK())
	assert.Equal(t, CodeInvalidResult, res.Err.Code)
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArguments("null")
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = DecodeArguments("[1,2]")
	assert.Error(t, err)
}

// -------------------- Built-in Tools --------------------

func TestTransferTool(t *testing.T) {
	tt := NewTransferTool("Sales Team", "Handles purchases.")
	assert.Equal(t, "transfer_to_sales_team", tt.Name())
	assert.Contains(t, tt.Description(), "Handles purchases.")

	target, ok := TransferTarget(tt)
	require.True(t, ok)
	assert.Equal(t, "Sales Team", target)

	_, ok = TransferTarget(sumTool())
	assert.False(t, ok)

	reg, _ := NewRegistry(tt)
	call := core.ToolCall{ID: "t1", Name: tt.Name(), Arguments: `{"rationale_for_transfer":"wants to buy"}`, Agent: "greeter"}
	tc, _ := dummyToolContext(call)
	res := Execute(tc, reg, call)
	require.True(t, res.OK())
	require.NotNil(t, tc.Actions().TransferToAgent)
	assert.Equal(t, "Sales Team", *tc.Actions().TransferToAgent)

	call.Arguments = `{}`
	tc, _ = dummyToolContext(call)
	res = Execute(tc, reg, call)
	require.False(t, res.OK())
	assert.Equal(t, CodeValidation, res.Err.Code)
	assert.Nil(t, tc.Actions().TransferToAgent)
}

func TestDisconnectTool(t *testing.T) {
	reg, _ := NewRegistry(NewDisconnectTool())
	call := core.ToolCall{ID: "d1", Name: DisconnectToolName, Arguments: `{}`}
	tc, _ := dummyToolContext(call)

	res := Execute(tc, reg, call)
	require.True(t, res.OK())
	require.NotNil(t, tc.Actions().Disconnect)
	assert.Equal(t, "agent requested disconnect", *tc.Actions().Disconnect)
}

func TestAlarmTool(t *testing.T) {
	var gotReason, gotUrgency string
	alarm := NewAlarmTool(func(o *AlarmToolOptions) {
		o.Handler = func(_ context.Context, reason, urgency string) error {
			gotReason, gotUrgency = reason, urgency
			return nil
		}
	})
	reg, _ := NewRegistry(alarm)

	call := core.ToolCall{ID: "a1", Name: AlarmToolName, Arguments: `{"reason":"caller fell","urgency":"high"}`}
	tc, tr := dummyToolContext(call)
	res := Execute(tc, reg, call)

	require.True(t, res.OK())
	assert.Equal(t, "caller fell", gotReason)
	assert.Equal(t, UrgencyHigh, gotUrgency)
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "alarm: high", snap[0].Title)

	call.Arguments = `{"reason":"x","urgency":"extreme"}`
	res = Execute(tc, reg, call)
	require.False(t, res.OK())
	assert.Equal(t, CodeValidation, res.Err.Code)
}
