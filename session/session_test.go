package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/flow"
	"github.com/hupe1980/realtimemesh/guardrail"
	"github.com/hupe1980/realtimemesh/internal/schema"
	"github.com/hupe1980/realtimemesh/internal/testutil"
	"github.com/hupe1980/realtimemesh/tool"
	"github.com/hupe1980/realtimemesh/transport"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func start(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	t.Cleanup(func() { _ = s.Close(); <-s.Done() })
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop")
	}
}

func messages(s *Session) []core.Item {
	var out []core.Item
	for _, it := range s.Transcript() {
		if it.IsMessage() {
			out = append(out, it)
		}
	}
	return out
}

func breadcrumbTitles(s *Session) []string {
	var out []string
	for _, it := range s.Transcript() {
		if it.Kind == core.KindBreadcrumb {
			out = append(out, it.Title)
		}
	}
	return out
}

func countType(cmds []core.CommandType, typ core.CommandType) int {
	n := 0
	for _, c := range cmds {
		if c == typ {
			n++
		}
	}
	return n
}

func TestSession_UserGreeting(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe(func(o *transport.PipeOptions) {
		o.Responder = func(cmd core.Command) []core.Event {
			switch c := cmd.(type) {
			case core.MessageSend:
				return []core.Event{testutil.NewItemBuilder("u1").User().Text(c.Text).Done().Build()}
			case core.TurnTrigger:
				return testutil.AssistantTurn("a1", "Hi", " there")
			}
			return nil
		}
	})

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.Eventually(t, func() bool {
		return countType(pipe.SentTypes(), core.CommandSessionReconfigure) == 1
	}, waitFor, tick)
	require.NoError(t, s.SendUserText("hello"))

	require.Eventually(t, func() bool {
		msgs := messages(s)
		return len(msgs) == 2 && msgs[1].IsDone()
	}, waitFor, tick)

	msgs := messages(s)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Text)
	assert.Empty(t, breadcrumbTitles(s))
	assert.Empty(t, s.PendingToolCalls())
	assert.Equal(t, "a", s.ActiveAgent())
}

func TestSession_ToolLookupWithGuardrail(t *testing.T) {
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{testutil.StaticTool("lookup", map[string]any{"answer": 42})}
	}).MustBuild()

	pipe := transport.NewPipe(func(o *transport.PipeOptions) {
		o.Responder = func(cmd core.Command) []core.Event {
			if _, ok := cmd.(core.TurnTrigger); ok {
				return testutil.AssistantTurn("a2", "The answer is 42.")
			}
			return nil
		}
	})

	var classified atomic.Int32
	s, err := New(g, pipe, func(o *Options) {
		o.Brand = "Acme"
		o.Classifier = guardrail.ClassifierFunc(func(_ context.Context, text, brand string) (core.Verdict, error) {
			classified.Add(1)
			return core.Verdict{Category: core.CategoryNone, Rationale: "factual answer"}, nil
		})
	})
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(testutil.ToolCall("c1", "lookup", `{"query":"x"}`)))

	require.Eventually(t, func() bool {
		it, ok := findItem(s, "a2")
		return ok && it.Verdict != nil && it.Verdict.Status == core.VerdictDone
	}, waitFor, tick)

	assert.Equal(t, []string{
		flow.TitleFunctionCall + "lookup",
		flow.TitleFunctionCallResult + "lookup",
	}, breadcrumbTitles(s))

	it, _ := findItem(s, "a2")
	assert.Equal(t, core.CategoryNone, it.Verdict.Category)
	assert.Equal(t, int32(1), classified.Load())

	types := pipe.SentTypes()
	assert.Equal(t, 1, countType(types, core.CommandToolCallResult))
	assert.Equal(t, 0, countType(types, core.CommandResponseCancel))
}

func findItem(s *Session, id string) (core.Item, bool) {
	for _, it := range s.Transcript() {
		if it.ID == id {
			return it, true
		}
	}
	return core.Item{}, false
}

func TestSession_ToolCallsRunSequentially(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		overlap bool
	)
	slow := tool.NewFunctionTool("slow", "Slow tool.", schema.Object(),
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			mu.Lock()
			active++
			if active > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return tc.FunctionCallID(), nil
		})

	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{slow}
	}).MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(
		testutil.ToolCall("c1", "slow", `{}`),
		testutil.ToolCall("c2", "slow", `{}`),
		testutil.ToolCall("c3", "slow", `{}`),
	))

	require.Eventually(t, func() bool {
		return countType(pipe.SentTypes(), core.CommandToolCallResult) == 3
	}, waitFor, tick)

	var ids []string
	for _, cmd := range pipe.Sent() {
		if r, ok := cmd.(core.ToolCallResult); ok {
			ids = append(ids, r.CallID)
		}
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
	mu.Lock()
	assert.False(t, overlap)
	mu.Unlock()
	require.Eventually(t, func() bool { return len(s.PendingToolCalls()) == 0 }, waitFor, tick)
}

func TestSession_HandoffRestrictedToEdges(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a", "b").Agent("b").Agent("c").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(core.HandoffRequested{Target: "c"}))
	require.Eventually(t, func() bool {
		return len(breadcrumbTitles(s)) == 1
	}, waitFor, tick)
	assert.Equal(t, "a", s.ActiveAgent())
	assert.Equal(t, []string{flow.TitleHandoffRejected}, breadcrumbTitles(s))

	require.NoError(t, pipe.Emit(core.HandoffRequested{Target: "b"}))
	require.Eventually(t, func() bool { return s.ActiveAgent() == "b" }, waitFor, tick)

	require.Eventually(t, func() bool {
		return countType(pipe.SentTypes(), core.CommandTurnTrigger) == 1
	}, waitFor, tick)
	sent := pipe.Sent()
	var last core.SessionReconfigure
	for _, cmd := range sent {
		if r, ok := cmd.(core.SessionReconfigure); ok {
			last = r
		}
	}
	assert.Equal(t, "b", last.Config.Agent)
}

func TestSession_DisconnectCancelsGuardrail(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe()

	entered := make(chan struct{})
	s, err := New(g, pipe, func(o *Options) {
		o.Classifier = guardrail.ClassifierFunc(func(ctx context.Context, _, _ string) (core.Verdict, error) {
			close(entered)
			<-ctx.Done()
			return core.Verdict{Category: core.CategoryViolence, Rationale: "late"}, nil
		})
	})
	require.NoError(t, err)
	errCh := start(t, s)

	require.NoError(t, pipe.Emit(testutil.AssistantTurn("a1", "something")...))
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("classifier not invoked")
	}

	require.NoError(t, pipe.Emit(core.Disconnected{Reason: "caller hung up"}))
	waitRun(t, errCh)

	it, ok := findItem(s, "a1")
	require.True(t, ok)
	require.NotNil(t, it.Verdict)
	assert.Equal(t, core.VerdictPending, it.Verdict.Status)
	assert.Equal(t, 0, countType(pipe.SentTypes(), core.CommandResponseCancel))
	assert.Equal(t, "caller hung up", s.CloseReason())
}

func TestSession_DisconnectDuringToolCall(t *testing.T) {
	entered := make(chan struct{})
	blocking := tool.NewFunctionTool("consult", "Blocks until cancelled.", schema.Object(),
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			close(entered)
			<-tc.Context().Done()
			return nil, tc.Context().Err()
		})
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{blocking}
	}).MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	errCh := start(t, s)

	require.NoError(t, pipe.Emit(testutil.ToolCall("c1", "consult", `{}`)))
	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("tool not invoked")
	}
	assert.Equal(t, []string{"c1"}, s.PendingToolCalls())

	require.NoError(t, pipe.Emit(core.Disconnected{}))
	waitRun(t, errCh)

	assert.Equal(t, 0, countType(pipe.SentTypes(), core.CommandToolCallResult))
	assert.Equal(t, "disconnected", s.CloseReason())
}

func TestSession_DisconnectTool(t *testing.T) {
	g := testutil.NewGraphBuilder("a").AgentWith("a", func(o *agent.Options) {
		o.Tools = []tool.Tool{tool.NewDisconnectTool()}
	}).MustBuild()
	pipe := transport.NewPipe()

	var closedWith string
	s, err := New(g, pipe, func(o *Options) {
		o.OnClose = func(_ *Session, reason string) { closedWith = reason }
	})
	require.NoError(t, err)
	errCh := start(t, s)

	require.NoError(t, pipe.Emit(testutil.ToolCall("c1", tool.DisconnectToolName, `{"reason":"goodbye"}`)))
	waitRun(t, errCh)

	types := pipe.SentTypes()
	assert.Equal(t, 1, countType(types, core.CommandToolCallResult))
	assert.Equal(t, 0, countType(types, core.CommandTurnTrigger))
	assert.Equal(t, "goodbye", s.CloseReason())
	assert.Equal(t, "goodbye", closedWith)
	assert.ErrorIs(t, s.SendUserText("hi"), core.ErrSessionClosed)
}

func TestSession_OperatorSelectDoesNotTriggerTurn(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").Agent("b").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.Eventually(t, func() bool {
		return countType(pipe.SentTypes(), core.CommandSessionReconfigure) == 1
	}, waitFor, tick)

	tr, err := s.SelectAgent("b")
	require.NoError(t, err)
	assert.Equal(t, "b", tr.To)
	assert.False(t, tr.Continue)
	assert.Equal(t, "b", s.ActiveAgent())

	types := pipe.SentTypes()
	assert.Equal(t, 2, countType(types, core.CommandSessionReconfigure))
	assert.Equal(t, 0, countType(types, core.CommandTurnTrigger))

	_, err = s.SelectAgent("missing")
	assert.ErrorIs(t, err, agent.ErrHandoffRejected)
	assert.Equal(t, "b", s.ActiveAgent())
}

func lastReconfigure(pipe *transport.Pipe) string {
	var last string
	for _, cmd := range pipe.Sent() {
		if r, ok := cmd.(core.SessionReconfigure); ok {
			last = r.Config.Agent
		}
	}
	return last
}

func TestSession_OperatorSelectWaitsForTransfer(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a", "b").Agent("b").Agent("c").MustBuild()
	held := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	pipe := transport.NewPipe(func(o *transport.PipeOptions) {
		o.Responder = func(cmd core.Command) []core.Event {
			if r, ok := cmd.(core.SessionReconfigure); ok && r.Config.Agent == "b" {
				once.Do(func() {
					close(held)
					<-release
				})
			}
			return nil
		}
	})

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(core.HandoffRequested{Target: "b"}))
	select {
	case <-held:
	case <-time.After(waitFor):
		t.Fatal("transfer did not reach the transport")
	}

	type result struct {
		tr  agent.Transition
		err error
	}
	selected := make(chan result, 1)
	go func() {
		tr, err := s.SelectAgent("c")
		selected <- result{tr, err}
	}()

	select {
	case <-selected:
		t.Fatal("select ran while the transfer was still being applied")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	var res result
	select {
	case res = <-selected:
	case <-time.After(waitFor):
		t.Fatal("select did not complete")
	}
	require.NoError(t, res.err)
	assert.Equal(t, "b", res.tr.From)
	assert.Equal(t, "c", res.tr.To)
	assert.Equal(t, "c", s.ActiveAgent())
	assert.Equal(t, "c", lastReconfigure(pipe))
}

func TestSession_SelectBeforeRun(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").Agent("b").MustBuild()
	s, err := New(g, transport.NewPipe())
	require.NoError(t, err)

	_, err = s.SelectAgent("b")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, "a", s.ActiveAgent())
}

func TestSession_OpeningMessage(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe, func(o *Options) { o.OpeningMessage = "Hello, I'd like to check in." })
	require.NoError(t, err)
	start(t, s)

	require.Eventually(t, func() bool { return len(pipe.Sent()) == 3 }, waitFor, tick)
	sent := pipe.Sent()
	assert.IsType(t, core.SessionReconfigure{}, sent[0])
	assert.Equal(t, core.MessageSend{Role: core.RoleUser, Text: "Hello, I'd like to check in."}, sent[1])
	assert.Equal(t, core.TurnTrigger{}, sent[2])
}

func TestSession_MaxDuration(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe()

	var closedWith string
	s, err := New(g, pipe, func(o *Options) {
		o.MaxDuration = 30 * time.Millisecond
		o.OnClose = func(_ *Session, reason string) { closedWith = reason }
	})
	require.NoError(t, err)

	errCh := start(t, s)
	waitRun(t, errCh)

	assert.Equal(t, ReasonMaxDuration, s.CloseReason())
	assert.Equal(t, ReasonMaxDuration, closedWith)
	assert.ErrorIs(t, s.SendUserText("still there?"), core.ErrSessionClosed)
}

func TestSession_InitialAgentAndValues(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").Agent("b").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe, func(o *Options) {
		o.ID = "s-1"
		o.InitialAgent = "b"
		o.Values = map[string]any{"user": "alice"}
	})
	require.NoError(t, err)
	start(t, s)

	assert.Equal(t, "s-1", s.ID())
	assert.Equal(t, "b", s.ActiveAgent())
	assert.Equal(t, "alice", s.Values()["user"])

	require.Eventually(t, func() bool { return len(pipe.Sent()) == 1 }, waitFor, tick)
	cfg, ok := pipe.Sent()[0].(core.SessionReconfigure)
	require.True(t, ok)
	assert.Equal(t, "b", cfg.Config.Agent)
}

func TestSession_UnknownInitialAgent(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	_, err := New(g, transport.NewPipe(), func(o *Options) { o.InitialAgent = "x" })
	require.Error(t, err)
}

func TestSession_RunTwice(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	s, err := New(g, transport.NewPipe())
	require.NoError(t, err)
	errCh := start(t, s)

	require.Eventually(t, func() bool { return s.started.Load() }, waitFor, tick)
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)

	require.NoError(t, s.Close())
	waitRun(t, errCh)
}

func TestSession_ContextCancelStopsRun(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	s, err := New(g, transport.NewPipe())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()
	waitRun(t, errCh)
	<-s.Done()
	assert.Equal(t, context.Canceled.Error(), s.CloseReason())
}

func TestSession_AnomalyDoesNotStopSession(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(testutil.Delta("ghost", "boo")))
	require.NoError(t, pipe.Emit(testutil.AssistantTurn("a1", "still here")...))

	require.Eventually(t, func() bool {
		msgs := messages(s)
		return len(msgs) == 1 && msgs[0].IsDone()
	}, waitFor, tick)
	_, ok := findItem(s, "ghost")
	assert.False(t, ok)
}

func TestSession_ProviderErrorBreadcrumb(t *testing.T) {
	g := testutil.NewGraphBuilder("a").Agent("a").MustBuild()
	pipe := transport.NewPipe()

	s, err := New(g, pipe)
	require.NoError(t, err)
	start(t, s)

	require.NoError(t, pipe.Emit(core.ProviderError{Code: "rate_limited", Message: "slow down"}))
	require.Eventually(t, func() bool {
		return len(breadcrumbTitles(s)) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{TitleProviderError}, breadcrumbTitles(s))
}
