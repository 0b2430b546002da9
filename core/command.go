package core

// CommandType names an outbound command.
type CommandType string

const (
	CommandSessionReconfigure CommandType = "session.reconfigure"
	CommandToolCallResult     CommandType = "tool_call.result"
	CommandMessageSend        CommandType = "message.send"
	CommandTurnTrigger        CommandType = "turn.trigger"
	CommandResponseCancel     CommandType = "response.cancel"
)

// Command is an outbound instruction for the realtime transport. Concrete
// command types implement the unexported isCommand marker.
type Command interface {
	Type() CommandType
	isCommand()
}

// ToolSpec is the provider-facing declaration of a callable tool.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionConfig is the live model configuration for the active agent.
type SessionConfig struct {
	Agent        string     `json:"agent"`
	Instructions string     `json:"instructions"`
	Tools        []ToolSpec `json:"tools"`
	Voice        string     `json:"voice,omitempty"`
}

// ToolNames returns the declared tool names in order.
func (c SessionConfig) ToolNames() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Name
	}
	return names
}

// SessionReconfigure swaps instructions and tools of the live session.
type SessionReconfigure struct {
	Config SessionConfig
}

func (SessionReconfigure) Type() CommandType { return CommandSessionReconfigure }
func (SessionReconfigure) isCommand()        {}

// ToolCallResult delivers the serialized outcome of a tool call.
type ToolCallResult struct {
	CallID string
	Output string
}

func (ToolCallResult) Type() CommandType { return CommandToolCallResult }
func (ToolCallResult) isCommand()        {}

// MessageSend injects a message into the live conversation.
type MessageSend struct {
	Role Role
	Text string
}

func (MessageSend) Type() CommandType { return CommandMessageSend }
func (MessageSend) isCommand()        {}

// TurnTrigger asks the live model to produce its next turn.
type TurnTrigger struct{}

func (TurnTrigger) Type() CommandType { return CommandTurnTrigger }
func (TurnTrigger) isCommand()        {}

// ResponseCancel aborts the response currently being produced.
type ResponseCancel struct{}

func (ResponseCancel) Type() CommandType { return CommandResponseCancel }
func (ResponseCancel) isCommand()        {}
