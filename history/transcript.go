package history

import (
	"sync"
	"time"

	"github.com/hupe1980/realtimemesh/core"
)

// Transcript is the ordered, id-keyed set of items of one session.
// It is safe for concurrent use; readers receive copies.
type Transcript struct {
	mu    sync.RWMutex
	order []string
	items map[string]*core.Item
	now   func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		items: map[string]*core.Item{},
		now:   time.Now,
	}
}

// insert appends item unless its id already exists.
func (t *Transcript) insert(item core.Item) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[item.ID]; exists {
		return false
	}
	ts := t.now()
	item.CreatedAt, item.UpdatedAt = ts, ts
	t.items[item.ID] = &item
	t.order = append(t.order, item.ID)
	return true
}

// mutate applies fn to the stored item under the write lock.
func (t *Transcript) mutate(id string, fn func(it *core.Item) error) (core.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.items[id]
	if !ok {
		return core.Item{}, &AnomalyError{Kind: AnomalyUnknownItem, ItemID: id}
	}
	if err := fn(it); err != nil {
		return it.Clone(), err
	}
	it.UpdatedAt = t.now()
	return it.Clone(), nil
}

// Get returns a copy of the item with the given id.
func (t *Transcript) Get(id string) (core.Item, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	it, ok := t.items[id]
	if !ok {
		return core.Item{}, false
	}
	return it.Clone(), true
}

// Len returns the number of items.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Snapshot returns copies of all items in insertion order.
func (t *Transcript) Snapshot() []core.Item {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.Item, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id].Clone())
	}
	return out
}

// Messages returns copies of the conversational messages in order.
func (t *Transcript) Messages() []core.Item {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.Item, 0, len(t.order))
	for _, id := range t.order {
		if it := t.items[id]; it.IsMessage() {
			out = append(out, it.Clone())
		}
	}
	return out
}

// AddBreadcrumb appends a done breadcrumb with a fresh id.
func (t *Transcript) AddBreadcrumb(title string, data map[string]any) core.Item {
	item := core.Item{
		ID:     core.NewID(),
		Kind:   core.KindBreadcrumb,
		Title:  title,
		Data:   data,
		Status: core.StatusDone,
	}
	t.insert(item)
	got, _ := t.Get(item.ID)
	return got
}

// AttachVerdict sets the guardrail verdict of the message with the given id.
// Verdicts are the only mutation permitted on a done message.
func (t *Transcript) AttachVerdict(id string, v core.Verdict) (core.Item, error) {
	return t.mutate(id, func(it *core.Item) error {
		if !it.IsMessage() {
			return &AnomalyError{Kind: AnomalyNotMessage, ItemID: id, Event: "verdict"}
		}
		it.Verdict = &v
		return nil
	})
}

// LastAssistantMessage returns the most recent assistant message.
func (t *Transcript) LastAssistantMessage() (core.Item, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.order) - 1; i >= 0; i-- {
		it := t.items[t.order[i]]
		if it.IsMessage() && it.Role == core.RoleAssistant {
			return it.Clone(), true
		}
	}
	return core.Item{}, false
}
