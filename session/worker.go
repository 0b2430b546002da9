package session

import (
	"errors"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/flow"
)

func (s *Session) enqueue(j job) {
	if j.kind == jobToolCall {
		s.pendingMu.Lock()
		s.pending = append(s.pending, j.call.ID)
		s.pendingMu.Unlock()
	}

	select {
	case s.jobs <- j:
	case <-s.done:
		s.finish(j)
	}
}

func (s *Session) finish(j job) {
	if j.kind != jobToolCall {
		return
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for i, id := range s.pending {
		if id == j.call.ID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// worker executes tool calls, handoff requests and operator selects one at a
// time in arrival order until the session context is cancelled.
func (s *Session) worker() {
	defer close(s.workerDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.jobs:
			if s.ctx.Err() != nil {
				s.finish(j)
				return
			}
			s.run(j)
			s.finish(j)
		}
	}
}

func (s *Session) run(j job) {
	var (
		out flow.Outcome
		err error
	)

	switch j.kind {
	case jobToolCall:
		out, err = s.mediator.Handle(s.runCtx, j.call)
	case jobHandoff:
		out, err = s.mediator.Handoff(s.runCtx, j.from, j.target)
	case jobSelect:
		tr, selErr := s.mediator.Select(s.runCtx, j.target)
		j.reply <- selectResult{transition: tr, err: selErr}
		return
	}

	if err != nil {
		if errors.Is(err, core.ErrSessionClosed) || s.ctx.Err() != nil {
			s.logger.Debug("session.job.dropped", "error", err.Error())
		} else {
			s.logger.Error("session.job.failed", "error", err.Error())
		}
	}

	if out.Disconnect != nil {
		reason := *out.Disconnect
		if reason == "" {
			reason = "disconnected by tool"
		}
		s.closeWithReason(reason)
	}
}
