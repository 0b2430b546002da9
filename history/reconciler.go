package history

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/logging"
)

// ErrUnsupportedEvent is returned by Apply for events the reconciler does not handle.
var ErrUnsupportedEvent = errors.New("event not handled by reconciler")

// Outcome describes the effect of one applied event.
type Outcome struct {
	// Item is a copy of the affected item after the event was applied.
	Item core.Item
	// Changed reports whether the transcript was modified.
	Changed bool
	// Redirected reports that a corrective instruction was stored as breadcrumb.
	Redirected bool
	// CompletedAssistant reports that an assistant message just became done
	// and should be checked by the guardrail pipeline.
	CompletedAssistant bool
}

// Options configures a Reconciler.
type Options struct {
	Detector CorrectionDetector
	Logger   logging.Logger
}

// Reconciler applies inbound item events to a Transcript.
type Reconciler struct {
	transcript *Transcript
	detector   CorrectionDetector
	logger     logging.Logger
}

// NewReconciler creates a reconciler writing into t.
func NewReconciler(t *Transcript, optFns ...func(o *Options)) *Reconciler {
	opts := Options{
		Detector: MarkerDetector{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Detector == nil {
		opts.Detector = NoCorrectionDetector
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Reconciler{transcript: t, detector: opts.Detector, logger: opts.Logger}
}

// Transcript returns the transcript the reconciler writes into.
func (r *Reconciler) Transcript() *Transcript { return r.transcript }

// Apply dispatches ev to the matching Apply* method.
func (r *Reconciler) Apply(ev core.Event) (Outcome, error) {
	switch e := ev.(type) {
	case core.ItemCreated:
		return r.ApplyCreated(e)
	case core.ItemUpdated:
		return r.ApplyUpdated(e)
	case core.TextDelta:
		return r.ApplyDelta(e)
	case core.TranscriptionCompleted:
		return r.ApplyCompleted(e)
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type())
	}
}

// ApplyCreated inserts a new message. Re-creating an existing id leaves the
// first item untouched and reports a duplicate_item anomaly.
func (r *Reconciler) ApplyCreated(ev core.ItemCreated) (Outcome, error) {
	text := core.JoinContent(ev.Content)

	if payload, ok := r.detector.Detect(text); ok {
		item := core.Item{
			ID:     ev.ItemID,
			Kind:   core.KindBreadcrumb,
			Title:  CorrectionTitle,
			Data:   payload,
			Status: core.StatusDone,
		}
		if !r.transcript.insert(item) {
			return Outcome{}, r.anomaly(AnomalyDuplicateItem, ev.ItemID, ev.Type())
		}
		r.logger.Debug("history.item.redirected", "item_id", ev.ItemID)
		got, _ := r.transcript.Get(ev.ItemID)
		return Outcome{Item: got, Changed: true, Redirected: true}, nil
	}

	role := ev.Role
	if role == "" {
		role = core.RoleAssistant
	}
	status := ev.Status
	if status == "" {
		status = core.StatusInProgress
	}
	item := core.Item{
		ID:     ev.ItemID,
		Kind:   core.KindMessage,
		Role:   role,
		Text:   text,
		Status: status,
	}
	if item.Status == core.StatusDone && item.Text == "" && role == core.RoleUser {
		item.Text = core.UnintelligiblePlaceholder
	}
	if !r.transcript.insert(item) {
		return Outcome{}, r.anomaly(AnomalyDuplicateItem, ev.ItemID, ev.Type())
	}

	got, _ := r.transcript.Get(ev.ItemID)
	return Outcome{
		Item:               got,
		Changed:            true,
		CompletedAssistant: got.IsDone() && got.Role == core.RoleAssistant,
	}, nil
}

// ApplyUpdated replaces the content of an in-progress message.
func (r *Reconciler) ApplyUpdated(ev core.ItemUpdated) (Outcome, error) {
	text := core.JoinContent(ev.Content)
	item, err := r.transcript.mutate(ev.ItemID, func(it *core.Item) error {
		if err := writable(it, ev); err != nil {
			return err
		}
		it.Text = text
		return nil
	})
	if err != nil {
		return Outcome{Item: item}, r.report(err, ev.ItemID, ev.Type())
	}
	return Outcome{Item: item, Changed: true}, nil
}

// ApplyDelta appends a text fragment to an in-progress message.
func (r *Reconciler) ApplyDelta(ev core.TextDelta) (Outcome, error) {
	item, err := r.transcript.mutate(ev.ItemID, func(it *core.Item) error {
		if err := writable(it, ev); err != nil {
			return err
		}
		it.Text += ev.Delta
		return nil
	})
	if err != nil {
		return Outcome{Item: item}, r.report(err, ev.ItemID, ev.Type())
	}
	return Outcome{Item: item, Changed: true}, nil
}

// ApplyCompleted finalizes a message. Non-empty text overwrites whatever was
// accumulated; an empty completion of an empty message stores the
// unintelligible placeholder. Completing a done message is a no-op.
func (r *Reconciler) ApplyCompleted(ev core.TranscriptionCompleted) (Outcome, error) {
	var redirected, noop bool
	item, err := r.transcript.mutate(ev.ItemID, func(it *core.Item) error {
		if !it.IsMessage() {
			return &AnomalyError{Kind: AnomalyNotMessage, ItemID: ev.ItemID, Event: string(ev.Type())}
		}
		if it.IsDone() {
			noop = true
			return nil
		}

		if ev.Text != nil && strings.TrimSpace(*ev.Text) != "" {
			it.Text = *ev.Text
		} else if strings.TrimSpace(it.Text) == "" {
			it.Text = core.UnintelligiblePlaceholder
		}
		it.Status = core.StatusDone

		if payload, ok := r.detector.Detect(it.Text); ok {
			it.Kind = core.KindBreadcrumb
			it.Title = CorrectionTitle
			it.Data = payload
			it.Role = ""
			it.Text = ""
			redirected = true
		}
		return nil
	})
	if err != nil {
		return Outcome{Item: item}, r.report(err, ev.ItemID, ev.Type())
	}
	if noop {
		r.logger.Debug("history.item.already_done", "item_id", ev.ItemID)
		return Outcome{Item: item}, nil
	}

	return Outcome{
		Item:               item,
		Changed:            true,
		Redirected:         redirected,
		CompletedAssistant: !redirected && item.Role == core.RoleAssistant,
	}, nil
}

func writable(it *core.Item, ev core.Event) error {
	if !it.IsMessage() {
		return &AnomalyError{Kind: AnomalyNotMessage, ItemID: it.ID, Event: string(ev.Type())}
	}
	if it.IsDone() {
		return &AnomalyError{Kind: AnomalyItemDone, ItemID: it.ID, Event: string(ev.Type())}
	}
	return nil
}

func (r *Reconciler) report(err error, itemID string, typ core.EventType) error {
	var ae *AnomalyError
	if errors.As(err, &ae) {
		ae.Event = string(typ)
		r.logger.Warn("history.anomaly", "kind", string(ae.Kind), "item_id", itemID, "event", string(typ))
	}
	return err
}

func (r *Reconciler) anomaly(kind AnomalyKind, itemID string, typ core.EventType) error {
	return r.report(&AnomalyError{Kind: kind, ItemID: itemID}, itemID, typ)
}
