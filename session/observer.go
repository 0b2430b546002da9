package session

import (
	"context"

	"github.com/hupe1980/realtimemesh/observability"
)

// sessionObserver tags every event with the session id before forwarding.
type sessionObserver struct {
	id   string
	next observability.Observer
}

func newSessionObserver(id string, next observability.Observer) observability.Observer {
	if next == nil {
		return observability.NoOpObserver{}
	}
	return &sessionObserver{id: id, next: next}
}

func (o *sessionObserver) OnEvent(ctx context.Context, event observability.Event) {
	data := make(map[string]any, len(event.Data)+1)
	for k, v := range event.Data {
		data[k] = v
	}
	if _, ok := data["session_id"]; !ok {
		data["session_id"] = o.id
	}
	event.Data = data
	o.next.OnEvent(ctx, event)
}
