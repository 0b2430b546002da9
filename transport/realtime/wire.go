package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/realtimemesh/core"
)

// Wire constants of the realtime protocol.
const (
	typeItemCreated            = "conversation.item.created"
	typeItemRetrieved          = "conversation.item.retrieved"
	typeAudioTranscriptDelta   = "response.audio_transcript.delta"
	typeTextDelta              = "response.text.delta"
	typeInputTranscriptDone    = "conversation.item.input_audio_transcription.completed"
	typeInputTranscriptFailed  = "conversation.item.input_audio_transcription.failed"
	typeAudioTranscriptDone    = "response.audio_transcript.done"
	typeTextDone               = "response.text.done"
	typeFunctionCallArgsDone   = "response.function_call_arguments.done"
	typeError                  = "error"
	typeSessionUpdate          = "session.update"
	typeConversationItemCreate = "conversation.item.create"
	typeResponseCreate         = "response.create"
	typeResponseCancel         = "response.cancel"
	itemTypeMessage            = "message"
	itemTypeFunctionCallOutput = "function_call_output"
	itemStatusCompleted        = "completed"
	contentTypeInputText       = "input_text"
	contentTypeInputAudio      = "input_audio"
	contentTypeText            = "text"
	toolTypeFunction           = "function"
	defaultToolChoice          = "auto"
	defaultTranscriptionModel  = "whisper-1"
	defaultTurnDetection       = "server_vad"
)

type wireContent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type wireItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []wireContent `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type wireError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// serverEvent is the union of the fields of every decoded server event.
type serverEvent struct {
	Type       string     `json:"type"`
	Item       *wireItem  `json:"item,omitempty"`
	ItemID     string     `json:"item_id,omitempty"`
	Delta      string     `json:"delta,omitempty"`
	Transcript *string    `json:"transcript,omitempty"`
	Text       *string    `json:"text,omitempty"`
	CallID     string     `json:"call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Arguments  string     `json:"arguments,omitempty"`
	Error      *wireError `json:"error,omitempty"`
}

type wireTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireTranscription struct {
	Model string `json:"model"`
}

type wireTurnDetection struct {
	Type string `json:"type"`
}

type wireSession struct {
	Instructions            string             `json:"instructions"`
	Tools                   []wireTool         `json:"tools"`
	ToolChoice              string             `json:"tool_choice"`
	Voice                   string             `json:"voice,omitempty"`
	InputAudioTranscription *wireTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *wireTurnDetection `json:"turn_detection,omitempty"`
}

// clientEvent is the union of the fields of every encoded client event.
type clientEvent struct {
	Type    string       `json:"type"`
	Session *wireSession `json:"session,omitempty"`
	Item    *wireItem    `json:"item,omitempty"`
}

// Codec translates between provider wire events and core events/commands.
type Codec struct {
	// TranscriptionModel enables input audio transcription when set.
	TranscriptionModel string
	// TurnDetection selects the server turn detection mode, empty to omit.
	TurnDetection string
}

func toParts(in []wireContent) []core.ContentPart {
	out := make([]core.ContentPart, len(in))
	for i, c := range in {
		out[i] = core.ContentPart{Type: c.Type, Text: c.Text, Transcript: c.Transcript}
	}
	return out
}

// awaitsTranscript reports whether a message carries spoken input whose
// transcript is delivered later by a transcription event. Such items stay in
// progress even when the provider already marks them completed.
func awaitsTranscript(parts []wireContent) bool {
	for _, p := range parts {
		if p.Type == contentTypeInputAudio && p.Transcript == "" {
			return true
		}
	}
	return false
}

// Decode parses one server message. Events the core does not consume decode
// to nil without error.
func (c Codec) Decode(raw []byte) (core.Event, error) {
	var ev serverEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode server event: %w", err)
	}

	switch ev.Type {
	case typeItemCreated:
		if ev.Item == nil || ev.Item.Type != itemTypeMessage {
			return nil, nil
		}
		out := core.ItemCreated{
			ItemID:  ev.Item.ID,
			Role:    core.Role(ev.Item.Role),
			Content: toParts(ev.Item.Content),
		}
		if ev.Item.Status == itemStatusCompleted && !awaitsTranscript(ev.Item.Content) {
			out.Status = core.StatusDone
		}
		return out, nil
	case typeItemRetrieved:
		if ev.Item == nil || ev.Item.Type != itemTypeMessage {
			return nil, nil
		}
		return core.ItemUpdated{ItemID: ev.Item.ID, Content: toParts(ev.Item.Content)}, nil
	case typeAudioTranscriptDelta, typeTextDelta:
		return core.TextDelta{ItemID: ev.ItemID, Delta: ev.Delta}, nil
	case typeInputTranscriptDone, typeAudioTranscriptDone:
		return core.TranscriptionCompleted{ItemID: ev.ItemID, Text: ev.Transcript}, nil
	case typeInputTranscriptFailed:
		return core.TranscriptionCompleted{ItemID: ev.ItemID}, nil
	case typeTextDone:
		return core.TranscriptionCompleted{ItemID: ev.ItemID, Text: ev.Text}, nil
	case typeFunctionCallArgsDone:
		return core.ToolCallRequested{CallID: ev.CallID, Name: ev.Name, Arguments: ev.Arguments}, nil
	case typeError:
		if ev.Error == nil {
			return core.ProviderError{Message: "unknown provider error"}, nil
		}
		code := ev.Error.Code
		if code == "" {
			code = ev.Error.Type
		}
		return core.ProviderError{Code: code, Message: ev.Error.Message}, nil
	default:
		return nil, nil
	}
}

// Encode renders one command as a client message.
func (c Codec) Encode(cmd core.Command) ([]byte, error) {
	var ev clientEvent

	switch cmd := cmd.(type) {
	case core.SessionReconfigure:
		s := &wireSession{
			Instructions: cmd.Config.Instructions,
			Tools:        make([]wireTool, 0, len(cmd.Config.Tools)),
			ToolChoice:   defaultToolChoice,
			Voice:        cmd.Config.Voice,
		}
		for _, t := range cmd.Config.Tools {
			s.Tools = append(s.Tools, wireTool{Type: toolTypeFunction, Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		if c.TranscriptionModel != "" {
			s.InputAudioTranscription = &wireTranscription{Model: c.TranscriptionModel}
		}
		if c.TurnDetection != "" {
			s.TurnDetection = &wireTurnDetection{Type: c.TurnDetection}
		}
		ev = clientEvent{Type: typeSessionUpdate, Session: s}
	case core.ToolCallResult:
		ev = clientEvent{Type: typeConversationItemCreate, Item: &wireItem{
			Type:   itemTypeFunctionCallOutput,
			CallID: cmd.CallID,
			Output: cmd.Output,
		}}
	case core.MessageSend:
		contentType := contentTypeInputText
		if cmd.Role == core.RoleAssistant {
			contentType = contentTypeText
		}
		ev = clientEvent{Type: typeConversationItemCreate, Item: &wireItem{
			Type:    itemTypeMessage,
			Role:    string(cmd.Role),
			Content: []wireContent{{Type: contentType, Text: cmd.Text}},
		}}
	case core.TurnTrigger:
		ev = clientEvent{Type: typeResponseCreate}
	case core.ResponseCancel:
		ev = clientEvent{Type: typeResponseCancel}
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}

	return json.Marshal(ev)
}
