package core

// EventType names an inbound event.
type EventType string

const (
	EventItemCreated            EventType = "item.created"
	EventItemUpdated            EventType = "item.updated"
	EventTextDelta              EventType = "text.delta"
	EventTranscriptionCompleted EventType = "transcription.completed"
	EventToolCallRequested      EventType = "tool_call.requested"
	EventHandoffRequested       EventType = "handoff.requested"
	EventProviderError          EventType = "provider.error"
	EventDisconnected           EventType = "disconnected"
)

// Event is an inbound event decoded from the realtime transport. Concrete
// event types implement the unexported isEvent marker enabling a closed set.
type Event interface {
	Type() EventType
	isEvent()
}

// ItemCreated announces a new message in the conversation. Status is empty
// for messages still being produced and StatusDone for messages that arrive
// complete, such as injected text.
type ItemCreated struct {
	ItemID  string
	Role    Role
	Content []ContentPart
	Status  ItemStatus
}

func (ItemCreated) Type() EventType { return EventItemCreated }
func (ItemCreated) isEvent()        {}

// ItemUpdated replaces the content of an in-progress message.
type ItemUpdated struct {
	ItemID  string
	Content []ContentPart
}

func (ItemUpdated) Type() EventType { return EventItemUpdated }
func (ItemUpdated) isEvent()        {}

// TextDelta appends incremental text to an in-progress message.
type TextDelta struct {
	ItemID string
	Delta  string
}

func (TextDelta) Type() EventType { return EventTextDelta }
func (TextDelta) isEvent()        {}

// TranscriptionCompleted finalizes a message. A nil Text means the provider
// reported completion without a transcript.
type TranscriptionCompleted struct {
	ItemID string
	Text   *string
}

func (TranscriptionCompleted) Type() EventType { return EventTranscriptionCompleted }
func (TranscriptionCompleted) isEvent()        {}

// ToolCallRequested is emitted when the live model finished streaming the
// arguments of a function call.
type ToolCallRequested struct {
	CallID    string
	Name      string
	Arguments string
}

func (ToolCallRequested) Type() EventType { return EventToolCallRequested }
func (ToolCallRequested) isEvent()        {}

// HandoffRequested is a provider-native handoff signal naming the target agent.
type HandoffRequested struct {
	Target string
}

func (HandoffRequested) Type() EventType { return EventHandoffRequested }
func (HandoffRequested) isEvent()        {}

// ProviderError reports an error event sent by the provider. It never ends
// the session.
type ProviderError struct {
	Code    string
	Message string
}

func (ProviderError) Type() EventType { return EventProviderError }
func (ProviderError) isEvent()        {}

// Disconnected ends the session.
type Disconnected struct {
	Reason string
}

func (Disconnected) Type() EventType { return EventDisconnected }
func (Disconnected) isEvent()        {}
