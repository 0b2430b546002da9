package testutil

import (
	"github.com/hupe1980/realtimemesh/core"
)

// ItemBuilder provides a fluent helper for constructing ItemCreated events.
// Example:
//
//	ev := NewItemBuilder("item-1").User().Text("hello").Done().Build()
//
// Chain only the parts you need; the role defaults to assistant.
type ItemBuilder struct {
	id     string
	role   core.Role
	parts  []core.ContentPart
	status core.ItemStatus
}

// NewItemBuilder creates a builder for the given item id.
func NewItemBuilder(id string) *ItemBuilder {
	return &ItemBuilder{id: id, role: core.RoleAssistant}
}

// User sets the role to user (chainable).
func (b *ItemBuilder) User() *ItemBuilder { b.role = core.RoleUser; return b }

// Assistant sets the role to assistant (chainable).
func (b *ItemBuilder) Assistant() *ItemBuilder { b.role = core.RoleAssistant; return b }

// Text appends a text content part (chainable).
func (b *ItemBuilder) Text(t string) *ItemBuilder {
	b.parts = append(b.parts, core.ContentPart{Type: "text", Text: t})
	return b
}

// Transcript appends an audio transcript content part (chainable).
func (b *ItemBuilder) Transcript(t string) *ItemBuilder {
	b.parts = append(b.parts, core.ContentPart{Type: "audio", Transcript: t})
	return b
}

// Done marks the item as arriving complete (chainable).
func (b *ItemBuilder) Done() *ItemBuilder { b.status = core.StatusDone; return b }

// Build returns the event.
func (b *ItemBuilder) Build() core.ItemCreated {
	return core.ItemCreated{
		ItemID:  b.id,
		Role:    b.role,
		Content: append([]core.ContentPart(nil), b.parts...),
		Status:  b.status,
	}
}

// Delta builds a text delta event.
func Delta(itemID, text string) core.TextDelta {
	return core.TextDelta{ItemID: itemID, Delta: text}
}

// Completed builds a completion event carrying text.
func Completed(itemID, text string) core.TranscriptionCompleted {
	return core.TranscriptionCompleted{ItemID: itemID, Text: &text}
}

// CompletedEmpty builds a completion event without a transcript.
func CompletedEmpty(itemID string) core.TranscriptionCompleted {
	return core.TranscriptionCompleted{ItemID: itemID}
}

// ToolCall builds a tool call request event.
func ToolCall(callID, name, arguments string) core.ToolCallRequested {
	return core.ToolCallRequested{CallID: callID, Name: name, Arguments: arguments}
}

// AssistantTurn returns the events of a complete assistant message: creation,
// one delta per fragment and a terminal completion with the joined text.
func AssistantTurn(itemID string, fragments ...string) []core.Event {
	events := []core.Event{NewItemBuilder(itemID).Build()}
	full := ""
	for _, f := range fragments {
		events = append(events, Delta(itemID, f))
		full += f
	}
	return append(events, Completed(itemID, full))
}
