package core

import (
	"context"

	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
)

// TranscriptView is the transcript surface exposed to tools and the
// escalation loop.
type TranscriptView interface {
	// Snapshot returns all items in order.
	Snapshot() []Item
	// Messages returns only conversational messages in order.
	Messages() []Item
	// AddBreadcrumb appends a done breadcrumb and returns it.
	AddBreadcrumb(title string, data map[string]any) Item
}

// RunContext carries the session scoped state shared by every tool call:
// the cancellation Context, the session id, caller supplied Values (passed by
// reference), the transcript view, the observer and the logger.
type RunContext struct {
	Context    context.Context
	SessionID  string
	Values     map[string]any
	Transcript TranscriptView
	Observer   observability.Observer

	*loggerAdapter
}

// NewRunContext constructs a RunContext. Nil values are replaced with
// usable zero implementations.
func NewRunContext(
	ctx context.Context,
	sessionID string,
	values map[string]any,
	transcript TranscriptView,
	observer observability.Observer,
	logger logging.Logger,
) *RunContext {
	if values == nil {
		values = map[string]any{}
	}
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		Values:        values,
		Transcript:    transcript,
		Observer:      observer,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithContext returns a shallow copy bound to ctx. Values and the transcript
// are shared with the receiver.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx
	return &c
}

// AddBreadcrumb records a breadcrumb when a transcript is attached and
// returns its id ("" otherwise).
func (rc *RunContext) AddBreadcrumb(title string, data map[string]any) string {
	if rc.Transcript == nil {
		return ""
	}
	return rc.Transcript.AddBreadcrumb(title, data).ID
}

// Emit publishes an observability event tagged with the session id.
func (rc *RunContext) Emit(typ observability.EventType, level observability.Level, source string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["session_id"] = rc.SessionID
	observability.Emit(rc.Context, rc.Observer, typ, level, source, data)
}
