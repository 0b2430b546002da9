package transport

import (
	"context"
	"sync"

	"github.com/hupe1980/realtimemesh/core"
)

// Responder reacts to an outbound command with inbound events, letting tests
// and embedders script a provider.
type Responder func(cmd core.Command) []core.Event

// PipeOptions configures a Pipe.
type PipeOptions struct {
	Responder Responder
}

// Pipe is an in-memory Transport. Events passed to Emit (or produced by the
// Responder) are delivered in order through an unbounded queue, so Emit never
// blocks the caller.
type Pipe struct {
	opts PipeOptions

	mu     sync.Mutex
	queue  []core.Event
	sent   []core.Command
	closed bool

	signal    chan struct{}
	events    chan core.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewPipe creates a pipe and starts its delivery goroutine.
func NewPipe(optFns ...func(o *PipeOptions)) *Pipe {
	opts := PipeOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Pipe{
		opts:   opts,
		signal: make(chan struct{}, 1),
		events: make(chan core.Event),
		done:   make(chan struct{}),
	}
	go p.pump()
	return p
}

// Events implements Transport.
func (p *Pipe) Events() <-chan core.Event { return p.events }

// Emit enqueues inbound events.
func (p *Pipe) Emit(events ...core.Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, events...)
	p.mu.Unlock()
	p.notify()
	return nil
}

// Send implements Transport. The command is recorded and passed to the
// Responder, whose events are enqueued after any pending ones.
func (p *Pipe) Send(ctx context.Context, cmd core.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.sent = append(p.sent, cmd)
	p.mu.Unlock()

	if p.opts.Responder != nil {
		if evs := p.opts.Responder(cmd); len(evs) > 0 {
			return p.Emit(evs...)
		}
	}
	return nil
}

// Sent returns a copy of the commands sent so far.
func (p *Pipe) Sent() []core.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Command(nil), p.sent...)
}

// SentTypes returns the types of the commands sent so far.
func (p *Pipe) SentTypes() []core.CommandType {
	sent := p.Sent()
	out := make([]core.CommandType, len(sent))
	for i, c := range sent {
		out[i] = c.Type()
	}
	return out
}

// Close implements Transport. Undelivered events are dropped and the events
// channel is closed.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
	return nil
}

func (p *Pipe) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *Pipe) pump() {
	defer close(p.events)
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			select {
			case <-p.signal:
				continue
			case <-p.done:
				return
			}
		}
		ev := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		select {
		case p.events <- ev:
		case <-p.done:
			return
		}
	}
}
