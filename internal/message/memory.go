package message

import (
	"context"
	"slices"
	"sync"

	"go-chat-engine/internal/conversation"
)

// DefaultRetention is the minimum number of messages the memory ledger keeps.
const DefaultRetention = 10000

// MemoryLedger keeps the most recent messages in process and evicts the
// oldest system-wide once capacity is reached.
type MemoryLedger struct {
	mu       sync.RWMutex
	capacity int
	log      []*Message            // append order, oldest first
	byConv   map[string][]*Message // per-conversation append order
}

func NewMemoryLedger(capacity int) *MemoryLedger {
	if capacity < DefaultRetention {
		capacity = DefaultRetention
	}
	return &MemoryLedger{
		capacity: capacity,
		byConv:   make(map[string][]*Message),
	}
}

func (l *MemoryLedger) Append(_ context.Context, m *Message) (*Message, error) {
	stored := prepare(m)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, stored)
	l.byConv[stored.ConversationID] = append(l.byConv[stored.ConversationID], stored)

	for len(l.log) > l.capacity {
		oldest := l.log[0]
		l.log[0] = nil
		l.log = l.log[1:]

		conv := l.byConv[oldest.ConversationID]
		conv[0] = nil
		if conv = conv[1:]; len(conv) == 0 {
			delete(l.byConv, oldest.ConversationID)
		} else {
			l.byConv[oldest.ConversationID] = conv
		}
	}
	return clone(stored), nil
}

func (l *MemoryLedger) Recent(_ context.Context, conversationID string, limit int) ([]*Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	conv := l.byConv[conversationID]
	if limit < 0 {
		limit = 0
	}
	if len(conv) > limit {
		conv = conv[len(conv)-limit:]
	}
	out := make([]*Message, len(conv))
	for i, m := range conv {
		out[i] = clone(m)
	}
	return out, nil
}

func (l *MemoryLedger) RecentConversations(_ context.Context, username string, limit int) ([]Summary, error) {
	me := conversation.Fold(username)

	l.mu.RLock()
	latest := make(map[string]*Message)
	for _, m := range l.log {
		if !slices.Contains(m.Participants, me) {
			continue
		}
		if cur, ok := latest[m.ConversationID]; !ok || newer(m, cur) {
			latest[m.ConversationID] = m
		}
	}
	l.mu.RUnlock()

	msgs := make([]*Message, 0, len(latest))
	for _, m := range latest {
		msgs = append(msgs, m)
	}
	return summarize(msgs, username, limit), nil
}

// Len returns the number of retained messages.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log)
}

func clone(m *Message) *Message {
	c := *m
	c.Participants = slices.Clone(m.Participants)
	return &c
}
