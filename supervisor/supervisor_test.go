package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/history"
	"github.com/hupe1980/realtimemesh/internal/testutil"
	"github.com/hupe1980/realtimemesh/model"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/tool"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recordingObserver) OnEvent(_ context.Context, e observability.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) types() []observability.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observability.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func escalate(t *testing.T, sup *Supervisor, tr *history.Transcript, obs observability.Observer) tool.Result {
	t.Helper()
	reg, err := tool.NewRegistry(sup)
	require.NoError(t, err)
	rc := core.NewRunContext(context.Background(), "sess-1", nil, tr, obs, nil)
	call := core.ToolCall{ID: "esc-1", Name: ToolName, Arguments: `{"relevant_context_from_last_user_message":"wants to change address"}`, Agent: "front"}
	return tool.Execute(core.NewToolContext(rc, call), reg, call)
}

func seededTranscript(t *testing.T) *history.Transcript {
	t.Helper()
	tr := history.NewTranscript()
	r := history.NewReconciler(tr)
	_, err := r.Apply(testutil.NewItemBuilder("u1").User().Text("I moved last week").Done().Build())
	require.NoError(t, err)
	tr.AddBreadcrumb("function call: lookup", nil)
	return tr
}

func toolCallResponse(id, name, args string) *model.Response {
	return &model.Response{
		ToolCalls: []model.ToolCall{{ID: id, Type: "function", Function: model.ToolCallFunction{Name: name, Arguments: args}}},
	}
}

func TestSupervisor_PlainAnswer(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(&model.Response{Content: " Sure, I can update that for you. "}, nil)

	obs := &recordingObserver{}
	res := escalate(t, New(llm), seededTranscript(t), obs)

	require.True(t, res.OK(), "%v", res.Err)
	assert.Equal(t, map[string]any{"next_response": "Sure, I can update that for you."}, res.Value)
	assert.Contains(t, obs.types(), observability.EventEscalationCompleted)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 2)
	assert.Equal(t, model.RoleSystem, reqs[0].Messages[0].Role)
	prompt := reqs[0].Messages[1].Content
	assert.Contains(t, prompt, "I moved last week")
	assert.Contains(t, prompt, "wants to change address")
	assert.NotContains(t, prompt, "function call: lookup", "breadcrumbs are filtered")
}

func TestSupervisor_NestedToolsSequential(t *testing.T) {
	var order []string
	mk := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, name, nil, func(*core.ToolContext, map[string]any) (any, error) {
			order = append(order, name)
			return map[string]any{"success": true, "tool": name}, nil
		})
	}
	reg, err := tool.NewRegistry(mk("get_account"), mk("update_address"))
	require.NoError(t, err)

	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(&model.Response{ToolCalls: []model.ToolCall{
		{ID: "n1", Type: "function", Function: model.ToolCallFunction{Name: "get_account", Arguments: `{}`}},
		{ID: "n2", Type: "function", Function: model.ToolCallFunction{Name: "update_address", Arguments: `{}`}},
	}}, nil)
	llm.Enqueue(&model.Response{Content: "Your address is updated."}, nil)

	tr := seededTranscript(t)
	res := escalate(t, New(llm, func(o *Options) { o.Tools = reg }), tr, nil)

	require.True(t, res.OK())
	assert.Equal(t, []string{"get_account", "update_address"}, order)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 2)
	second := reqs[1].Messages
	require.Len(t, second, 5)
	assert.Equal(t, model.RoleAssistant, second[2].Role)
	assert.Len(t, second[2].ToolCalls, 2)
	assert.Equal(t, "n1", second[3].ToolCallID)
	assert.Contains(t, second[3].Content, "get_account")
	assert.Equal(t, "n2", second[4].ToolCallID)

	var titles []string
	for _, it := range tr.Snapshot() {
		if it.Kind == core.KindBreadcrumb && strings.HasPrefix(it.Title, "supervisor") {
			titles = append(titles, it.Title)
		}
	}
	assert.Equal(t, []string{
		"supervisor function call: get_account",
		"supervisor function call result: get_account",
		"supervisor function call: update_address",
		"supervisor function call result: update_address",
	}, titles)
}

func TestSupervisor_UnknownNestedToolIsReportedToModel(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(toolCallResponse("n1", "missing", `{}`), nil)
	llm.Enqueue(&model.Response{Content: "Let me check another way."}, nil)

	res := escalate(t, New(llm), seededTranscript(t), nil)
	require.True(t, res.OK())
	assert.Contains(t, llm.Requests()[1].Messages[3].Content, tool.CodeUnknownTool)
}

func TestSupervisor_IterationCap(t *testing.T) {
	calls := 0
	noop := tool.NewFunctionTool("noop", "noop", nil, func(*core.ToolContext, map[string]any) (any, error) {
		calls++
		return "ok", nil
	})
	reg, err := tool.NewRegistry(noop)
	require.NoError(t, err)

	llm := model.NewMockModel("supervisor", "mock")
	llm.SetHandler(func(context.Context, model.Request) (*model.Response, error) {
		return toolCallResponse("n", "noop", `{}`), nil
	})

	obs := &recordingObserver{}
	res := escalate(t, New(llm, func(o *Options) { o.Tools = reg }), seededTranscript(t), obs)

	require.False(t, res.OK())
	assert.Equal(t, CodeEscalationFailed, res.Err.Code)
	assert.Equal(t, FallbackMessage, res.Err.Message)
	assert.Contains(t, res.Err.Details, ErrIterationBudget.Error())
	assert.Equal(t, 8, llm.Calls())
	assert.Equal(t, 8, calls)
	assert.Contains(t, obs.types(), observability.EventEscalationFailed)
}

func TestSupervisor_CustomCap(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.SetHandler(func(context.Context, model.Request) (*model.Response, error) {
		return toolCallResponse("n", "missing", `{}`), nil
	})

	res := escalate(t, New(llm, func(o *Options) { o.MaxIterations = 3 }), seededTranscript(t), nil)
	require.False(t, res.OK())
	assert.Equal(t, 3, llm.Calls())
}

func TestSupervisor_ProviderErrorFailsClosed(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(nil, errors.New("503 upstream"))

	res := escalate(t, New(llm, func(o *Options) { o.FallbackMessage = "Please hold." }), seededTranscript(t), nil)
	require.False(t, res.OK())
	assert.Equal(t, CodeEscalationFailed, res.Err.Code)
	assert.Equal(t, "Please hold.", res.Err.Message)
	assert.Contains(t, res.Output(), "Please hold.")
}

func TestSupervisor_Timeout(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.SetDelay(time.Second)

	start := time.Now()
	res := escalate(t, New(llm, func(o *Options) { o.Timeout = 20 * time.Millisecond }), seededTranscript(t), nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, res.OK())
	assert.Equal(t, CodeEscalationFailed, res.Err.Code)
	assert.Contains(t, res.Err.Details, context.DeadlineExceeded.Error())
}

func TestSupervisor_TimeoutAbandonsStuckNestedTool(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := tool.NewFunctionTool("slow_lookup", "ignores its context", nil, func(*core.ToolContext, map[string]any) (any, error) {
		<-release
		return "late", nil
	})
	reg, err := tool.NewRegistry(stuck)
	require.NoError(t, err)

	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(toolCallResponse("n1", "slow_lookup", `{}`), nil)

	tr := seededTranscript(t)
	start := time.Now()
	res := escalate(t, New(llm, func(o *Options) {
		o.Tools = reg
		o.Timeout = 50 * time.Millisecond
	}), tr, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.False(t, res.OK())
	assert.Equal(t, CodeEscalationFailed, res.Err.Code)
	assert.Contains(t, res.Err.Details, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, llm.Calls())

	for _, it := range tr.Snapshot() {
		assert.NotEqual(t, TitleFunctionCallResult+"slow_lookup", it.Title)
	}
}

func TestSupervisor_NonPositiveBoundsUseDefaults(t *testing.T) {
	for _, limit := range []int{0, -1} {
		llm := model.NewMockModel("supervisor", "mock")
		llm.SetHandler(func(context.Context, model.Request) (*model.Response, error) {
			return toolCallResponse("n", "missing", `{}`), nil
		})

		sup := New(llm, func(o *Options) {
			o.MaxIterations = limit
			o.Timeout = 0
		})
		assert.Equal(t, DefaultMaxIterations, sup.opts.MaxIterations)
		assert.Equal(t, DefaultTimeout, sup.opts.Timeout)

		res := escalate(t, sup, seededTranscript(t), nil)
		require.False(t, res.OK())
		assert.Equal(t, DefaultMaxIterations, llm.Calls())
	}
}

func TestSupervisor_EmptyAnswerFailsClosed(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	llm.Enqueue(&model.Response{Content: "  "}, nil)

	res := escalate(t, New(llm), seededTranscript(t), nil)
	require.False(t, res.OK())
	assert.Equal(t, CodeEscalationFailed, res.Err.Code)
}

func TestSupervisor_MissingArgumentRejected(t *testing.T) {
	llm := model.NewMockModel("supervisor", "mock")
	sup := New(llm)
	reg, err := tool.NewRegistry(sup)
	require.NoError(t, err)
	rc := core.NewRunContext(context.Background(), "s", nil, history.NewTranscript(), nil, nil)
	call := core.ToolCall{ID: "c", Name: ToolName, Arguments: `{}`}

	res := tool.Execute(core.NewToolContext(rc, call), reg, call)
	require.False(t, res.OK())
	assert.Equal(t, tool.CodeValidation, res.Err.Code)
	assert.Equal(t, 0, llm.Calls())
}
