package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/history"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/internal/testutil"
	"github.com/hupe1980/realtimemesh/tool"
)

type fixture struct {
	mediator   *Mediator
	handoffs   *agent.HandoffController
	recorder   *testutil.CommandRecorder
	transcript *history.Transcript
	runCtx     *core.RunContext
}

func newFixture(t *testing.T, g *agent.Graph) *fixture {
	t.Helper()
	hc, err := agent.NewHandoffController(g)
	require.NoError(t, err)
	rec := testutil.NewCommandRecorder()
	tr := history.NewTranscript()
	return &fixture{
		mediator:   NewMediator(hc, rec),
		handoffs:   hc,
		recorder:   rec,
		transcript: tr,
		runCtx:     core.NewRunContext(context.Background(), "sess-1", map[string]any{}, tr, nil, nil),
	}
}

func breadcrumbTitles(tr *history.Transcript) []string {
	var titles []string
	for _, it := range tr.Snapshot() {
		if it.Kind == core.KindBreadcrumb {
			titles = append(titles, it.Title)
		}
	}
	return titles
}

func TestMediator_Success(t *testing.T) {
	g := testutil.NewGraphBuilder("b").AgentWith("b", func(o *agent.Options) {
		o.Tools = []tool.Tool{testutil.StaticTool("lookup", map[string]any{"success": true})}
	}).MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "lookup", Arguments: `{"query":"x"}`})
	require.NoError(t, err)
	assert.True(t, out.Result.OK())
	assert.Nil(t, out.Transition)

	assert.Equal(t, []string{"function call: lookup", "function call result: lookup"}, breadcrumbTitles(f.transcript))

	snap := f.transcript.Snapshot()
	assert.Equal(t, "b", snap[0].Data["agent"])
	assert.Equal(t, map[string]any{"query": "x"}, snap[0].Data["arguments"])
	assert.Equal(t, map[string]any{"success": true}, snap[1].Data["result"])

	cmds := f.recorder.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, core.ToolCallResult{CallID: "c1", Output: `{"success":true}`}, cmds[0])
	assert.Equal(t, core.TurnTrigger{}, cmds[1])
}

func TestMediator_UnknownTool(t *testing.T) {
	f := newFixture(t, testutil.NewGraphBuilder("a").Agent("a").MustBuild())

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "nope"})
	require.NoError(t, err)
	require.False(t, out.Result.OK())
	assert.Equal(t, tool.CodeUnknownTool, out.Result.Err.Code)

	assert.Equal(t, []string{"function call: nope", "function call result: nope"}, breadcrumbTitles(f.transcript))
	res := f.recorder.Commands()[0].(core.ToolCallResult)
	assert.Contains(t, res.Output, tool.CodeUnknownTool)
	assert.Equal(t, core.CommandTurnTrigger, f.recorder.Types()[1])
}

func TestMediator_ValidationRejectsWithoutInvoking(t *testing.T) {
	called := false
	phone := tool.NewFunctionTool("lookup_phone", "lookup",
		schema.Object(schema.Required("phone", &jsonschema.Schema{Type: "string", Pattern: `^\+?[0-9]{7,15}$`})),
		func(*core.ToolContext, map[string]any) (any, error) { called = true; return nil, nil })
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) { o.Tools = []tool.Tool{phone} }).MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "lookup_phone", Arguments: `{"phone":"call me"}`})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, tool.CodeValidation, out.Result.Err.Code)
}

func TestMediator_ToolsEvaluatedAgainstIssuingAgent(t *testing.T) {
	g := testutil.NewGraphBuilder("a").
		AgentWith("a", func(o *agent.Options) {
			o.Tools = []tool.Tool{testutil.StaticTool("only_a", "ok")}
			o.Handoffs = []string{"b"}
		}).
		Agent("b").
		MustBuild()
	f := newFixture(t, g)

	_, err := f.handoffs.Transfer(context.Background(), "a", "b", agent.SourceModel)
	require.NoError(t, err)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "only_a", Arguments: `{"query":"q"}`, Agent: "a"})
	require.NoError(t, err)
	assert.True(t, out.Result.OK())

	out, err = f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c2", Name: "only_a", Arguments: `{"query":"q"}`})
	require.NoError(t, err)
	assert.Equal(t, tool.CodeUnknownTool, out.Result.Err.Code)
}

func TestMediator_TransferAppliesHandoff(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a", "b").Agent("b", "a").MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "transfer_to_b", Arguments: `{"rationale_for_transfer":"billing question"}`})
	require.NoError(t, err)
	require.NotNil(t, out.Transition)
	assert.True(t, out.Transition.Continue)
	assert.Equal(t, "b", f.handoffs.ActiveName())

	assert.Equal(t, []core.CommandType{
		core.CommandToolCallResult,
		core.CommandSessionReconfigure,
		core.CommandTurnTrigger,
	}, f.recorder.Types())
	reconf := f.recorder.Commands()[1].(core.SessionReconfigure)
	assert.Equal(t, "b", reconf.Config.Agent)
	assert.Equal(t, []string{"transfer_to_a"}, reconf.Config.ToolNames())

	assert.Equal(t, []string{"function call: transfer_to_b", "function call result: transfer_to_b", "agent switch: b"}, breadcrumbTitles(f.transcript))

	// the second handoff does not trigger a synthetic turn
	f.recorder.Reset()
	_, err = f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c2", Name: "transfer_to_a", Arguments: `{"rationale_for_transfer":"done"}`})
	require.NoError(t, err)
	assert.Equal(t, []core.CommandType{core.CommandToolCallResult, core.CommandSessionReconfigure}, f.recorder.Types())
}

func TestMediator_HandoffRestriction(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a", "b").Agent("b").Agent("c").MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handoff(f.runCtx, "a", "c")
	require.NoError(t, err)
	require.Error(t, out.HandoffErr)
	assert.Nil(t, out.Transition)
	assert.Equal(t, "a", f.handoffs.ActiveName())
	assert.Empty(t, f.recorder.Commands())

	snap := f.transcript.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, TitleHandoffRejected, snap[0].Title)
	assert.Equal(t, "c", snap[0].Data["to"])
}

func TestMediator_RejectedTransferToolBecomesErrorResult(t *testing.T) {
	rogue := tool.NewFunctionTool("jump", "jump anywhere", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.TransferToAgent("c")
		return "jumping", nil
	})
	g := testutil.NewGraphBuilder("a").
		AgentWith("a", func(o *agent.Options) { o.Tools = []tool.Tool{rogue} }).
		Agent("c").
		MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "jump"})
	require.NoError(t, err)
	require.False(t, out.Result.OK())
	assert.Equal(t, CodeHandoffRejected, out.Result.Err.Code)
	assert.Equal(t, "a", f.handoffs.ActiveName())
	assert.Equal(t, []string{"function call: jump", TitleHandoffRejected, "function call result: jump"}, breadcrumbTitles(f.transcript))
	assert.Equal(t, []core.CommandType{core.CommandToolCallResult, core.CommandTurnTrigger}, f.recorder.Types())
}

func TestMediator_Disconnect(t *testing.T) {
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{tool.NewDisconnectTool()}
	}).MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: tool.DisconnectToolName, Arguments: `{"reason":"bye"}`})
	require.NoError(t, err)
	require.NotNil(t, out.Disconnect)
	assert.Equal(t, "bye", *out.Disconnect)
	assert.Equal(t, []core.CommandType{core.CommandToolCallResult}, f.recorder.Types())
}

func TestMediator_OperatorSelectDoesNotContinue(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").Agent("b").MustBuild()
	f := newFixture(t, g)

	tr, err := f.mediator.Select(f.runCtx, "b")
	require.NoError(t, err)
	assert.Equal(t, agent.SourceOperator, tr.Source)
	assert.Equal(t, []core.CommandType{core.CommandSessionReconfigure}, f.recorder.Types())

	_, err = f.mediator.Select(f.runCtx, "ghost")
	require.Error(t, err)
	assert.Equal(t, "b", f.handoffs.ActiveName())
}

func TestMediator_SequentialOrdering(t *testing.T) {
	var observed []string
	var f *fixture
	first := testutil.StaticTool("first", "one")
	second := tool.NewFunctionTool("second", "checks ordering", nil, func(*core.ToolContext, map[string]any) (any, error) {
		observed = breadcrumbTitles(f.transcript)
		return "two", nil
	})
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) { o.Tools = []tool.Tool{first, second} }).MustBuild()
	f = newFixture(t, g)

	_, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "first", Arguments: `{"query":"q"}`})
	require.NoError(t, err)
	_, err = f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c2", Name: "second"})
	require.NoError(t, err)

	assert.Equal(t, []string{"function call: first", "function call result: first", "function call: second"}, observed)
}

func TestMediator_SendFailure(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	f := newFixture(t, g)
	f.recorder.FailOn(core.CommandToolCallResult, errors.New("socket closed"))

	_, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "nope"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "socket closed"))
	assert.Empty(t, f.recorder.Commands())
}

func TestMediator_InvalidArgumentsBreadcrumbKeepsRaw(t *testing.T) {
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{testutil.StaticTool("lookup", "ok")}
	}).MustBuild()
	f := newFixture(t, g)

	out, err := f.mediator.Handle(f.runCtx, core.ToolCall{ID: "c1", Name: "lookup", Arguments: `{broken`})
	require.NoError(t, err)
	assert.Equal(t, tool.CodeInvalidArguments, out.Result.Err.Code)
	assert.Equal(t, "{broken", f.transcript.Snapshot()[0].Data["arguments"])
}
