package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/flow"
	"github.com/hupe1980/realtimemesh/guardrail"
	"github.com/hupe1980/realtimemesh/history"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/transport"
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("session already started")

// ErrNotStarted is returned by operations that need a running session.
var ErrNotStarted = errors.New("session not started")

// ReasonMaxDuration is the close reason of a session that reached MaxDuration.
const ReasonMaxDuration = "max session duration reached"

// Breadcrumb titles recorded by the session.
const (
	TitleProviderError = "error: provider"
	TitleAnomaly       = "error: history anomaly"
)

// Options configures a Session.
type Options struct {
	// ID identifies the session. Generated when empty.
	ID string
	// Values is caller supplied context passed by reference to every tool.
	Values map[string]any
	// InitialAgent selects the first active agent. Empty means the graph root.
	InitialAgent string
	// AutoContinueFirstHandoff triggers a synthetic turn after the first
	// model initiated handoff. Default true.
	AutoContinueFirstHandoff bool
	// ConfigureOnStart sends the initial agent configuration when Run starts.
	// Default true.
	ConfigureOnStart bool
	// OpeningMessage, when set, is sent as a user message followed by a turn
	// trigger right after the initial configuration so the agent speaks first.
	OpeningMessage string
	// MaxDuration ends the session with ReasonMaxDuration once elapsed.
	// Values <= 0 mean no limit.
	MaxDuration time.Duration
	// Detector recognizes corrective guardrail messages echoed by the provider.
	Detector history.CorrectionDetector
	// Classifier enables the guardrail pipeline when set.
	Classifier guardrail.Classifier
	// Brand is the caller identifying label passed to the classifier.
	Brand string
	// GuardrailTimeout bounds a single classification.
	GuardrailTimeout time.Duration
	// Executor runs tool calls. Defaults to the sequential executor.
	Executor flow.FunctionExecutor
	// QueueSize is the capacity of the tool call queue.
	QueueSize int
	// OnClose is invoked once after the session shut down.
	OnClose  func(s *Session, reason string)
	Logger   logging.Logger
	Observer observability.Observer
}

type jobKind int

const (
	jobToolCall jobKind = iota
	jobHandoff
	jobSelect
)

type selectResult struct {
	transition agent.Transition
	err        error
}

type job struct {
	kind   jobKind
	call   core.ToolCall
	from   string
	target string
	reply  chan selectResult
}

// Session is one live realtime conversation.
type Session struct {
	id        string
	transport transport.Transport
	opts      Options
	logger    logging.Logger

	transcript *history.Transcript
	reconciler *history.Reconciler
	handoffs   *agent.HandoffController
	mediator   *flow.Mediator
	guardrails *guardrail.Pipeline
	runCtx     *core.RunContext

	ctx    context.Context
	cancel context.CancelFunc

	jobs       chan job
	pendingMu  sync.Mutex
	pending    []string
	workerDone chan struct{}

	started     atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}
	finished    chan struct{}
	reasonMu    sync.Mutex
	closeReason string
}

// New creates a session over graph and tr. Run must be called to start
// processing events.
func New(graph *agent.Graph, tr transport.Transport, optFns ...func(o *Options)) (*Session, error) {
	opts := Options{
		AutoContinueFirstHandoff: true,
		ConfigureOnStart:         true,
		Detector:                 history.MarkerDetector{},
		QueueSize:                32,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if graph == nil {
		return nil, errors.New("session requires an agent graph")
	}
	if tr == nil {
		return nil, errors.New("session requires a transport")
	}
	if opts.ID == "" {
		opts.ID = core.NewID()
	}
	if opts.Values == nil {
		opts.Values = map[string]any{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if ml, ok := opts.Logger.(*logging.MeshLogger); ok {
		opts.Logger = ml.WithSession(opts.ID)
	}
	obs := newSessionObserver(opts.ID, opts.Observer)

	handoffs, err := agent.NewHandoffController(graph, func(o *agent.HandoffOptions) {
		o.AutoContinueFirstHandoff = opts.AutoContinueFirstHandoff
		o.Vars = opts.Values
		o.Initial = opts.InitialAgent
		o.Logger = opts.Logger
		o.Observer = obs
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", opts.ID, err)
	}

	transcript := history.NewTranscript()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:         opts.ID,
		transport:  tr,
		opts:       opts,
		logger:     opts.Logger,
		transcript: transcript,
		reconciler: history.NewReconciler(transcript, func(o *history.Options) {
			o.Detector = opts.Detector
			o.Logger = opts.Logger
		}),
		handoffs: handoffs,
		mediator: flow.NewMediator(handoffs, tr, func(o *flow.MediatorOptions) {
			if opts.Executor != nil {
				o.Executor = opts.Executor
			}
		}),
		runCtx:     core.NewRunContext(ctx, opts.ID, opts.Values, transcript, obs, opts.Logger),
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(chan job, opts.QueueSize),
		workerDone: make(chan struct{}),
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}

	if opts.Classifier != nil {
		s.guardrails = guardrail.NewPipeline(opts.Classifier, transcript, tr, func(o *guardrail.Options) {
			o.Brand = opts.Brand
			o.Timeout = opts.GuardrailTimeout
			o.Logger = opts.Logger
			o.Observer = obs
		})
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Values returns the caller supplied context map.
func (s *Session) Values() map[string]any { return s.opts.Values }

// Transcript returns a read-only snapshot of the transcript.
func (s *Session) Transcript() []core.Item { return s.transcript.Snapshot() }

// ActiveAgent returns the name of the active agent.
func (s *Session) ActiveAgent() string { return s.handoffs.ActiveName() }

// PendingToolCalls returns the ids of queued or executing tool calls in order.
func (s *Session) PendingToolCalls() []string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return append([]string(nil), s.pending...)
}

// Done returns a channel closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.finished }

// CloseReason returns why the session ended, empty while it is live.
func (s *Session) CloseReason() string {
	s.reasonMu.Lock()
	defer s.reasonMu.Unlock()
	return s.closeReason
}

// SendUserText injects a user message and asks the live model to respond.
func (s *Session) SendUserText(text string) error {
	if s.closing() {
		return core.ErrSessionClosed
	}
	if err := s.transport.Send(s.ctx, core.MessageSend{Role: core.RoleUser, Text: text}); err != nil {
		return fmt.Errorf("send user text: %w", err)
	}
	if err := s.transport.Send(s.ctx, core.TurnTrigger{}); err != nil {
		return fmt.Errorf("trigger turn: %w", err)
	}
	return nil
}

// SelectAgent switches the active agent on behalf of an operator. The live
// model is reconfigured but no turn is triggered. The switch is queued behind
// tool calls and handoffs already received and waits for its turn, so the
// last reconfiguration sent always matches the active agent.
func (s *Session) SelectAgent(name string) (agent.Transition, error) {
	if s.closing() {
		return agent.Transition{}, core.ErrSessionClosed
	}
	if !s.started.Load() {
		return agent.Transition{}, ErrNotStarted
	}

	reply := make(chan selectResult, 1)
	s.enqueue(job{kind: jobSelect, target: name, reply: reply})

	select {
	case res := <-reply:
		return res.transition, res.err
	case <-s.done:
		return agent.Transition{}, core.ErrSessionClosed
	}
}

// Close ends the session. It is safe to call multiple times and from tools.
func (s *Session) Close() error {
	s.closeWithReason("closed by caller")
	return nil
}

func (s *Session) closeWithReason(reason string) {
	s.closeOnce.Do(func() {
		s.reasonMu.Lock()
		s.closeReason = reason
		s.reasonMu.Unlock()
		close(s.done)
		s.cancel()
	})
}

func (s *Session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Run configures the live model for the initial agent and processes events
// until the transport disconnects, ctx is cancelled or Close is called.
// Ending the session is not an error.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.closing() {
		close(s.workerDone)
		s.shutdown()
		return core.ErrSessionClosed
	}

	s.logger.Info("session.started", "session_id", s.id, "agent", s.handoffs.ActiveName())
	s.runCtx.Emit(observability.EventSessionStarted, observability.LevelInfo, "session", map[string]any{
		"agent": s.handoffs.ActiveName(),
	})

	if err := s.open(); err != nil {
		s.closeWithReason(err.Error())
		close(s.workerDone)
		s.shutdown()
		return err
	}

	go s.worker()

	var deadline <-chan time.Time
	if s.opts.MaxDuration > 0 {
		timer := time.NewTimer(s.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	events := s.transport.Events()
loop:
	for {
		select {
		case <-deadline:
			s.logger.Info("session.max_duration", "max_duration", s.opts.MaxDuration.String())
			s.closeWithReason(ReasonMaxDuration)
			break loop
		case <-ctx.Done():
			s.closeWithReason(ctx.Err().Error())
			break loop
		case <-s.done:
			break loop
		case ev, ok := <-events:
			if !ok {
				s.closeWithReason("transport closed")
				break loop
			}
			s.handle(ev)
		}
	}

	s.shutdown()
	return nil
}

// open configures the live model and sends the opening turn.
func (s *Session) open() error {
	if s.opts.ConfigureOnStart {
		if err := s.configure(); err != nil {
			return err
		}
	}
	if s.opts.OpeningMessage != "" {
		if err := s.SendUserText(s.opts.OpeningMessage); err != nil {
			return fmt.Errorf("opening message: %w", err)
		}
	}
	return nil
}

func (s *Session) configure() error {
	cfg, err := s.handoffs.InitialConfig()
	if err != nil {
		return fmt.Errorf("initial session config: %w", err)
	}
	if err := s.transport.Send(s.ctx, core.SessionReconfigure{Config: cfg}); err != nil {
		return fmt.Errorf("initial session config: %w", err)
	}
	return nil
}

func (s *Session) shutdown() {
	s.cancel()
	<-s.workerDone
	if s.guardrails != nil {
		s.guardrails.Wait()
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("session.transport.close_failed", "error", err.Error())
	}

	reason := s.CloseReason()
	s.logger.Info("session.closed", "session_id", s.id, "reason", reason)
	observability.Emit(context.Background(), s.runCtx.Observer, observability.EventSessionClosed, observability.LevelInfo, "session", map[string]any{
		"reason": reason,
	})

	if s.opts.OnClose != nil {
		s.opts.OnClose(s, reason)
	}
	close(s.finished)
}

func (s *Session) handle(ev core.Event) {
	switch e := ev.(type) {
	case core.ItemCreated, core.ItemUpdated, core.TextDelta, core.TranscriptionCompleted:
		out, err := s.reconciler.Apply(ev)
		if err != nil {
			s.anomaly(err)
			return
		}
		if out.CompletedAssistant && s.guardrails != nil {
			s.guardrails.Schedule(s.ctx, out.Item.ID, out.Item.Text)
		}
	case core.ToolCallRequested:
		s.enqueue(job{kind: jobToolCall, call: core.ToolCall{
			ID:        e.CallID,
			Name:      e.Name,
			Arguments: e.Arguments,
			Agent:     s.handoffs.ActiveName(),
		}})
	case core.HandoffRequested:
		s.enqueue(job{kind: jobHandoff, from: s.handoffs.ActiveName(), target: e.Target})
	case core.ProviderError:
		s.logger.Warn("session.provider.error", "code", e.Code, "message", e.Message)
		s.runCtx.AddBreadcrumb(TitleProviderError, map[string]any{"code": e.Code, "message": e.Message})
		s.runCtx.Emit(observability.EventProviderError, observability.LevelWarning, "session", map[string]any{
			"code": e.Code, "message": e.Message,
		})
	case core.Disconnected:
		s.closeWithReason(disconnectReason(e))
	default:
		s.logger.Debug("session.event.ignored", "type", string(ev.Type()))
	}
}

func disconnectReason(e core.Disconnected) string {
	if e.Reason == "" {
		return "disconnected"
	}
	return e.Reason
}

func (s *Session) anomaly(err error) {
	data := map[string]any{"error": err.Error()}
	var ae *history.AnomalyError
	if errors.As(err, &ae) {
		data["kind"] = string(ae.Kind)
		data["item_id"] = ae.ItemID
		data["event"] = ae.Event
	}
	s.runCtx.Emit(observability.EventHistoryAnomaly, observability.LevelWarning, "history", data)
}
