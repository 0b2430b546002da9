package history

import "fmt"

// AnomalyKind classifies a protocol anomaly.
type AnomalyKind string

const (
	AnomalyUnknownItem   AnomalyKind = "unknown_item"
	AnomalyDuplicateItem AnomalyKind = "duplicate_item"
	AnomalyItemDone      AnomalyKind = "item_done"
	AnomalyNotMessage    AnomalyKind = "not_message"
)

// AnomalyError reports an inbound event that could not be applied. The
// transcript is left unchanged.
type AnomalyError struct {
	Kind   AnomalyKind
	ItemID string
	Event  string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("history anomaly %s for item %q on %s", e.Kind, e.ItemID, e.Event)
}
