package message

import (
	"time"

	"go-chat-engine/internal/conversation"
)

// Conversation kinds.
const (
	TypeDirect = "dm"
	TypeGroup  = "group"
)

// Message is immutable once appended. Participants is the folded member
// snapshot taken at send time and is never rewritten, so history keeps
// showing who could see a message when it was sent. GroupName is a
// snapshot for the same reason.
type Message struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to,omitempty"`
	GroupID        string    `json:"groupId,omitempty"`
	GroupName      string    `json:"groupName,omitempty"`
	Text           string    `json:"text"`
	At             time.Time `json:"at"`
	Participants   []string  `json:"participants"`
}

// Summary is the conversation-list entry derived from a conversation's
// latest message.
type Summary struct {
	ConversationID  string    `json:"conversationId"`
	Type            string    `json:"type"`
	With            string    `json:"with"`
	LastFrom        string    `json:"lastFrom"`
	LastMessageText string    `json:"lastMessageText"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
}

// SummaryFor describes m from viewer's side: the peer for direct messages,
// the group name for group messages.
func SummaryFor(m *Message, viewer string) Summary {
	s := Summary{
		ConversationID:  m.ConversationID,
		Type:            m.Type,
		LastFrom:        m.From,
		LastMessageText: m.Text,
		LastMessageAt:   m.At,
	}
	if s.Type == "" {
		s.Type = TypeDirect
		if conversation.IsGroup(m.ConversationID) {
			s.Type = TypeGroup
		}
	}
	if s.Type == TypeGroup {
		s.With = m.GroupName
		if s.With == "" {
			s.With = "Group"
		}
		return s
	}
	if conversation.Fold(m.From) != conversation.Fold(viewer) {
		s.With = m.From
	} else {
		s.With = m.To
	}
	return s
}

// newer reports whether a is more recent than b: later timestamp, ties
// broken by the greater id.
func newer(a, b *Message) bool {
	if !a.At.Equal(b.At) {
		return a.At.After(b.At)
	}
	return a.ID > b.ID
}

// fillParticipants computes the direct-message participant pair when the
// caller did not supply a snapshot.
func fillParticipants(m *Message) {
	if len(m.Participants) > 0 {
		return
	}
	if m.To != "" {
		m.Participants = conversation.Participants(m.From, m.To)
		return
	}
	m.Participants = []string{conversation.Fold(m.From)}
}
