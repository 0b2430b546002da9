// Package transport defines the boundary between a session and the realtime
// provider connection that carries its event stream.
//
// Implementations must deliver inbound events in provider order on a single
// channel and close that channel when the connection ends. Send must be safe
// for concurrent use; the session main loop, the tool worker and guardrail
// checks all send commands.
package transport

import (
	"context"
	"errors"

	"github.com/hupe1980/realtimemesh/core"
)

// ErrClosed is returned by Send after the transport was closed.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional realtime connection.
type Transport interface {
	// Events returns the inbound event stream. It is closed when the
	// connection ends.
	Events() <-chan core.Event
	// Send delivers an outbound command.
	Send(ctx context.Context, cmd core.Command) error
	// Close terminates the connection. It is idempotent.
	Close() error
}
