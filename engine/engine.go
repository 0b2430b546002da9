package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/session"
	"github.com/hupe1980/realtimemesh/transport"
)

// ErrCapacity is returned by Start when the concurrent session limit is reached.
var ErrCapacity = errors.New("engine at session capacity")

// ErrShutdown is returned by Start after Shutdown was called.
var ErrShutdown = errors.New("engine is shut down")

// Config defines tuning parameters for the Engine's operational behavior.
type Config struct {
	// MaxConcurrentSessions limits the number of sessions that run at the
	// same time. Set to 0 for unlimited.
	MaxConcurrentSessions int
}

// DefaultConfig provides default configuration values.
var DefaultConfig = Config{
	MaxConcurrentSessions: 10,
}

// Options configures an Engine instance.
type Options struct {
	// Config contains operational parameters for the engine behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Registry tracks live sessions. Defaults to a fresh registry.
	Registry *session.Registry

	// Callbacks receives lifecycle events. Defaults to an empty manager.
	Callbacks *CallbackManager

	// SessionOptions are applied to every session before the per-call
	// options passed to Start.
	SessionOptions []func(o *session.Options)

	// Logger provides structured logging for debugging and monitoring.
	Logger logging.Logger

	// Observer receives observability events of every session.
	Observer observability.Observer
}

// Engine admits connections and runs a session for each of them.
type Engine struct {
	graph     *agent.Graph
	config    Config
	registry  *session.Registry
	callbacks *CallbackManager
	sessOpts  []func(o *session.Options)
	logger    logging.Logger
	observer  observability.Observer

	mu       sync.Mutex
	running  int
	shutdown bool
	wg       sync.WaitGroup
}

// New creates an engine serving graph.
func New(graph *agent.Graph, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if graph == nil {
		return nil, errors.New("engine requires an agent graph")
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Engine{
		graph:     graph,
		config:    opts.Config,
		registry:  opts.Registry,
		callbacks: opts.Callbacks,
		sessOpts:  opts.SessionOptions,
		logger:    opts.Logger,
		observer:  opts.Observer,
	}, nil
}

// Graph returns the agent graph shared by all sessions.
func (e *Engine) Graph() *agent.Graph { return e.graph }

// Callbacks returns the lifecycle callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// Start admits tr, creates a session and runs it in the background. The
// transport is closed when admission fails.
func (e *Engine) Start(ctx context.Context, tr transport.Transport, optFns ...func(o *session.Options)) (*session.Session, error) {
	if err := e.acquire(); err != nil {
		_ = tr.Close()
		return nil, err
	}

	s, err := e.newSession(tr, optFns)
	if err != nil {
		e.release()
		_ = tr.Close()
		e.fail(ctx, "", err)
		return nil, err
	}

	cbCtx := &CallbackContext{SessionID: s.ID(), Agent: s.ActiveAgent(), Metadata: map[string]any{}}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeSession, cbCtx); err != nil {
		e.release()
		_ = tr.Close()
		e.fail(ctx, s.ID(), err)
		return nil, err
	}

	if err := e.registry.Add(s); err != nil {
		e.release()
		_ = tr.Close()
		e.fail(ctx, s.ID(), err)
		return nil, err
	}

	e.logger.Info("engine.session.admitted", "session_id", s.ID(), "agent", s.ActiveAgent())

	go func() {
		defer e.release()

		if err := s.Run(ctx); err != nil && !errors.Is(err, core.ErrSessionClosed) {
			e.fail(context.Background(), s.ID(), err)
		}
		<-s.Done()
		e.registry.Remove(s.ID())

		cbCtx.Agent = s.ActiveAgent()
		cbCtx.Reason = s.CloseReason()
		if err := e.callbacks.ExecuteCallbacks(context.Background(), CallbackAfterSession, cbCtx); err != nil {
			e.logger.Warn("engine.callback.failed", "session_id", s.ID(), "error", err.Error())
		}
	}()

	return s, nil
}

// Serve is like Start but blocks until the session ended.
func (e *Engine) Serve(ctx context.Context, tr transport.Transport, optFns ...func(o *session.Options)) (*session.Session, error) {
	s, err := e.Start(ctx, tr, optFns...)
	if err != nil {
		return nil, err
	}
	<-s.Done()
	return s, nil
}

// Session returns the live session with id.
func (e *Engine) Session(id string) (*session.Session, error) {
	return e.registry.Get(id)
}

// Sessions returns the ids of all live sessions.
func (e *Engine) Sessions() []string {
	return e.registry.List()
}

// Running returns the number of admitted sessions that have not shut down.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stop closes the live session with id.
func (e *Engine) Stop(id string) error {
	s, err := e.registry.Get(id)
	if err != nil {
		return err
	}
	return s.Close()
}

// Shutdown stops admitting sessions, closes every live session and waits
// until they shut down or ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown = true
	e.mu.Unlock()

	for _, id := range e.registry.List() {
		if err := e.Stop(id); err != nil && !errors.Is(err, session.ErrNotFound) {
			e.logger.Warn("engine.session.stop_failed", "session_id", id, "error", err.Error())
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) newSession(tr transport.Transport, optFns []func(o *session.Options)) (*session.Session, error) {
	all := make([]func(o *session.Options), 0, len(e.sessOpts)+len(optFns)+1)
	all = append(all, func(o *session.Options) {
		o.Logger = e.logger
		o.Observer = e.observer
	})
	all = append(all, e.sessOpts...)
	all = append(all, optFns...)

	s, err := session.New(e.graph, tr, all...)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return ErrShutdown
	}
	if e.config.MaxConcurrentSessions > 0 && e.running >= e.config.MaxConcurrentSessions {
		e.logger.Warn("engine.session.rejected", "running", e.running, "limit", e.config.MaxConcurrentSessions)
		return ErrCapacity
	}
	e.running++
	e.wg.Add(1)
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	e.wg.Done()
}

func (e *Engine) fail(ctx context.Context, sessionID string, err error) {
	e.logger.Error("engine.session.failed", "session_id", sessionID, "error", err.Error())
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{SessionID: sessionID, Err: err}); cbErr != nil {
		e.logger.Warn("engine.callback.failed", "session_id", sessionID, "error", cbErr.Error())
	}
}
