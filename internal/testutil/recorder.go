package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/realtimemesh/core"
)

// CommandRecorder records outbound commands. It is safe for concurrent use
// and satisfies flow.Sender.
type CommandRecorder struct {
	mu       sync.Mutex
	commands []core.Command
	failOn   map[core.CommandType]error
}

// NewCommandRecorder creates an empty recorder.
func NewCommandRecorder() *CommandRecorder {
	return &CommandRecorder{failOn: map[core.CommandType]error{}}
}

// FailOn makes Send return err for commands of type typ (chainable).
func (r *CommandRecorder) FailOn(typ core.CommandType, err error) *CommandRecorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn[typ] = err
	return r
}

// Send records cmd.
func (r *CommandRecorder) Send(_ context.Context, cmd core.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failOn[cmd.Type()]; ok {
		return err
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// Commands returns a copy of the recorded commands.
func (r *CommandRecorder) Commands() []core.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Command(nil), r.commands...)
}

// Types returns the recorded command types in order.
func (r *CommandRecorder) Types() []core.CommandType {
	cmds := r.Commands()
	out := make([]core.CommandType, len(cmds))
	for i, c := range cmds {
		out[i] = c.Type()
	}
	return out
}

// Count returns how many commands of type typ were recorded.
func (r *CommandRecorder) Count(typ core.CommandType) int {
	n := 0
	for _, t := range r.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// Reset drops all recorded commands.
func (r *CommandRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
}
