package core

import (
	"maps"
	"time"
)

// Role is the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ItemKind distinguishes conversational messages from breadcrumbs.
type ItemKind string

const (
	KindMessage    ItemKind = "message"
	KindBreadcrumb ItemKind = "breadcrumb"
)

// ItemStatus tracks whether a message is still being produced.
type ItemStatus string

const (
	StatusInProgress ItemStatus = "in_progress"
	StatusDone       ItemStatus = "done"
)

// UnintelligiblePlaceholder replaces a user utterance whose transcription
// completed without any text.
const UnintelligiblePlaceholder = "[inaudible]"

// Item is one transcript entry. Messages carry Role/Text/Status and an
// optional guardrail Verdict; breadcrumbs carry Title/Data and are always done.
type Item struct {
	ID        string         `json:"id"`
	Kind      ItemKind       `json:"kind"`
	Role      Role           `json:"role,omitempty"`
	Title     string         `json:"title,omitempty"`
	Text      string         `json:"text,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Status    ItemStatus     `json:"status"`
	Verdict   *Verdict       `json:"guardrail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// IsMessage reports whether the item is a conversational message.
func (i Item) IsMessage() bool { return i.Kind == KindMessage }

// IsDone reports whether the item has reached its terminal status.
func (i Item) IsDone() bool { return i.Status == StatusDone }

// Clone returns a deep copy safe to hand out of a locked store.
func (i Item) Clone() Item {
	c := i
	if i.Data != nil {
		c.Data = maps.Clone(i.Data)
	}
	if i.Verdict != nil {
		v := *i.Verdict
		c.Verdict = &v
	}
	return c
}

// ContentPart is a single content segment of a provider item.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// JoinContent concatenates the textual payload of the parts in order.
// Text wins over Transcript when both are set.
func JoinContent(parts []ContentPart) string {
	var out string
	for _, p := range parts {
		switch {
		case p.Text != "":
			out += p.Text
		case p.Transcript != "":
			out += p.Transcript
		}
	}
	return out
}
