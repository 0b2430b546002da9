// Package realtimemesh orchestrates multi-agent voice conversations over a
// realtime speech-to-speech model.
//
// A Mesh serves one immutable agent graph. Each realtime connection becomes a
// session that reconciles the provider's event stream into a transcript,
// mediates tool calls and agent handoffs, escalates hard questions to an
// out-of-band reasoning model and screens assistant output with guardrails.
//
//	g, err := scenario.Build(sc, func(o *scenario.BuildOptions) { o.Model = llm })
//	if err != nil {
//	    return err
//	}
//	mesh, err := realtimemesh.New(g)
//	if err != nil {
//	    return err
//	}
//	conn, err := realtime.Dial(ctx, func(o *realtime.Options) { o.APIKey = key })
//	if err != nil {
//	    return err
//	}
//	s, err := mesh.Connect(ctx, conn)
package realtimemesh

import (
	"context"

	"github.com/hupe1980/realtimemesh/agent"
	"github.com/hupe1980/realtimemesh/engine"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
	"github.com/hupe1980/realtimemesh/session"
	"github.com/hupe1980/realtimemesh/transport"
)

// Options configures a Mesh.
type Options struct {
	// EngineConfig tunes connection admission.
	EngineConfig engine.Config

	// Callbacks receives session lifecycle events.
	Callbacks *engine.CallbackManager

	// SessionOptions are applied to every session.
	SessionOptions []func(o *session.Options)

	Logger   logging.Logger
	Observer observability.Observer
}

// Mesh is the entry point for embedding realtimemesh.
type Mesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a Mesh serving graph.
func New(graph *agent.Graph, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e, err := engine.New(graph, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Callbacks = opts.Callbacks
		o.SessionOptions = opts.SessionOptions
		o.Logger = opts.Logger
		o.Observer = opts.Observer
	})
	if err != nil {
		return nil, err
	}

	return &Mesh{opts: opts, engine: e}, nil
}

// Engine returns the underlying engine.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Graph returns the served agent graph.
func (m *Mesh) Graph() *agent.Graph { return m.engine.Graph() }

// Connect starts a session on tr and returns it while it runs in the
// background.
func (m *Mesh) Connect(ctx context.Context, tr transport.Transport, optFns ...func(o *session.Options)) (*session.Session, error) {
	return m.engine.Start(ctx, tr, optFns...)
}

// Serve runs a session on tr until it ends.
func (m *Mesh) Serve(ctx context.Context, tr transport.Transport, optFns ...func(o *session.Options)) (*session.Session, error) {
	return m.engine.Serve(ctx, tr, optFns...)
}

// Session returns a live session by id.
func (m *Mesh) Session(id string) (*session.Session, error) { return m.engine.Session(id) }

// Stop closes a live session by id.
func (m *Mesh) Stop(id string) error { return m.engine.Stop(id) }

// Shutdown closes every live session and waits for them to end.
func (m *Mesh) Shutdown(ctx context.Context) error { return m.engine.Shutdown(ctx) }
