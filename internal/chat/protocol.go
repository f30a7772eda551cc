package chat

import (
	"encoding/json"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/message"
)

// Inbound events.
const (
	EventOpenDirect = "chat:open"
	EventSendDirect = "chat:send"
	EventOpenGroup  = "group:open"
	EventSendGroup  = "group:send"
)

// Outbound events.
const (
	EventDirectHistory = "chat:history"
	EventDirectMessage = "chat:message"
	EventGroupHistory  = "group:history"
	EventGroupMessage  = "group:message"
	EventNotify        = "chat:notify"
	EventError         = "chat:error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command is one of OpenDirect, SendDirect, OpenGroup or SendGroup.
type Command interface {
	command()
}

type OpenDirect struct {
	With string `json:"with"`
}

type SendDirect struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type OpenGroup struct {
	GroupID string `json:"groupId"`
}

type SendGroup struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

func (OpenDirect) command() {}
func (SendDirect) command() {}
func (OpenGroup) command()  {}
func (SendGroup) command()  {}

// DirectHistory answers a successful OpenDirect.
type DirectHistory struct {
	ConversationID string             `json:"conversationId"`
	With           string             `json:"with"`
	Messages       []*message.Message `json:"messages"`
}

// GroupHistory answers a successful OpenGroup.
type GroupHistory struct {
	GroupID        string             `json:"groupId"`
	Name           string             `json:"name"`
	ConversationID string             `json:"conversationId"`
	Messages       []*message.Message `json:"messages"`
}

type ErrorPayload struct {
	Code  apperr.Kind `json:"code"`
	Error string      `json:"error"`
}

// Decode parses an inbound frame into a Command.
func Decode(frame []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, "malformed frame", err)
	}

	var cmd Command
	switch env.Event {
	case EventOpenDirect:
		cmd = &OpenDirect{}
	case EventSendDirect:
		cmd = &SendDirect{}
	case EventOpenGroup:
		cmd = &OpenGroup{}
	case EventSendGroup:
		cmd = &SendGroup{}
	default:
		return nil, apperr.New(apperr.InvalidArgument, "unknown event "+env.Event)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, cmd); err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, "malformed "+env.Event+" payload", err)
		}
	}

	switch c := cmd.(type) {
	case *OpenDirect:
		return *c, nil
	case *SendDirect:
		return *c, nil
	case *OpenGroup:
		return *c, nil
	case *SendGroup:
		return *c, nil
	}
	return nil, apperr.New(apperr.Internal, "unreachable")
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, payload})
}
