package message

import (
	"context"
	"slices"
	"time"
)

// Ledger is the append-only message store. A conversation with no history
// yields empty results, never an error.
type Ledger interface {
	// Append stores m, computing the participant snapshot for direct
	// messages when it is missing, and returns the stored message.
	Append(ctx context.Context, m *Message) (*Message, error)
	// Recent returns the last limit messages of a conversation, oldest first.
	Recent(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// RecentConversations returns one summary per conversation the user took
	// part in, newest first.
	RecentConversations(ctx context.Context, username string, limit int) ([]Summary, error)
}

// prepare copies m into the form every backend stores.
func prepare(m *Message) *Message {
	stored := *m
	stored.Participants = slices.Clone(m.Participants)
	stored.At = stored.At.UTC().Truncate(time.Microsecond)
	fillParticipants(&stored)
	return &stored
}

// summarize orders the latest message of each conversation newest first,
// truncates to limit and renders each one for viewer.
func summarize(latest []*Message, viewer string, limit int) []Summary {
	slices.SortFunc(latest, func(a, b *Message) int {
		switch {
		case newer(a, b):
			return -1
		case newer(b, a):
			return 1
		}
		return 0
	})
	if limit < 0 {
		limit = 0
	}
	if len(latest) > limit {
		latest = latest[:limit]
	}
	out := make([]Summary, 0, len(latest))
	for _, m := range latest {
		out = append(out, SummaryFor(m, viewer))
	}
	return out
}
