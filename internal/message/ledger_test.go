package message

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"go-chat-engine/internal/conversation"
	"go-chat-engine/internal/db"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryLedger(t *testing.T) {
	runLedgerSuite(t, func(t *testing.T) Ledger { return NewMemoryLedger(DefaultRetention) })
}

func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	runLedgerSuite(t, func(t *testing.T) Ledger {
		ctx := context.Background()
		database, err := db.NewDatabase(ctx, dsn)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(database.Close)
		if err := database.AutoMigrate(ctx); err != nil {
			t.Fatal(err)
		}
		if _, err := database.Pool.Exec(ctx, `TRUNCATE messages`); err != nil {
			t.Fatal(err)
		}
		return NewPostgresLedger(database.Pool)
	})
}

func TestRedisLedger(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	runLedgerSuite(t, func(t *testing.T) Ledger {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { client.Close() })
		if err := client.FlushDB(context.Background()).Err(); err != nil {
			t.Fatal(err)
		}
		return NewRedisLedger(client)
	})
}

func dm(from, to, text string, at time.Time) *Message {
	convID, _ := conversation.DirectID(from, to)
	return &Message{
		ID:             uuid.NewString(),
		Type:           TypeDirect,
		ConversationID: convID,
		From:           from,
		To:             to,
		Text:           text,
		At:             at,
	}
}

func groupMsg(groupID, name, from, text string, at time.Time, members ...string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		Type:           TypeGroup,
		ConversationID: conversation.GroupID(groupID),
		From:           from,
		GroupID:        groupID,
		GroupName:      name,
		Text:           text,
		At:             at,
		Participants:   members,
	}
}

func mustAppend(t *testing.T, l Ledger, m *Message) *Message {
	t.Helper()
	stored, err := l.Append(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	return stored
}

func runLedgerSuite(t *testing.T, newLedger func(t *testing.T) Ledger) {
	t.Run("AppendFillsDirectParticipants", func(t *testing.T) {
		l := newLedger(t)
		stored := mustAppend(t, l, dm("Bob", "alice", "hi", t0))
		if len(stored.Participants) != 2 || stored.Participants[0] != "alice" || stored.Participants[1] != "bob" {
			t.Fatalf("participants = %v", stored.Participants)
		}
	})

	t.Run("RecentReturnsLastNInAppendOrder", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		var ids []string
		for i := 0; i < 7; i++ {
			// Timestamps go backwards on purpose: order is append order.
			m := mustAppend(t, l, dm("alice", "bob", fmt.Sprintf("m%d", i), t0.Add(-time.Duration(i)*time.Second)))
			ids = append(ids, m.ID)
		}
		convID, _ := conversation.DirectID("alice", "bob")

		for _, n := range []int{0, 1, 3, 7, 50} {
			got, err := l.Recent(ctx, convID, n)
			if err != nil {
				t.Fatal(err)
			}
			want := ids[len(ids)-min(n, len(ids)):]
			if len(got) != len(want) {
				t.Fatalf("Recent(%d) returned %d messages, want %d", n, len(got), len(want))
			}
			for i := range want {
				if got[i].ID != want[i] {
					t.Fatalf("Recent(%d)[%d] = %s, want %s", n, i, got[i].ID, want[i])
				}
			}
		}
	})

	t.Run("RecentUnknownConversationIsEmpty", func(t *testing.T) {
		got, err := newLedger(t).Recent(context.Background(), "dm:nobody__noone", 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("expected empty history, got %d", len(got))
		}
	})

	t.Run("RecentConversationsLatestPerConversation", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		mustAppend(t, l, dm("alice", "bob", "old", t0))
		mustAppend(t, l, dm("carol", "alice", "from carol", t0.Add(2*time.Second)))
		mustAppend(t, l, dm("bob", "alice", "newest with bob", t0.Add(3*time.Second)))
		mustAppend(t, l, groupMsg("g1", "team", "dave", "team news", t0.Add(time.Second), "alice", "dave"))
		mustAppend(t, l, dm("bob", "carol", "not alice", t0.Add(10*time.Second)))

		got, err := l.RecentConversations(ctx, "ALICE", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 conversations, got %+v", got)
		}
		want := []struct{ with, text string }{
			{"bob", "newest with bob"},
			{"carol", "from carol"},
			{"team", "team news"},
		}
		seen := map[string]bool{}
		for i, s := range got {
			if seen[s.ConversationID] {
				t.Fatalf("duplicate conversation %s", s.ConversationID)
			}
			seen[s.ConversationID] = true
			if s.With != want[i].with || s.LastMessageText != want[i].text {
				t.Fatalf("entry %d = %+v, want with=%s text=%s", i, s, want[i].with, want[i].text)
			}
			if i > 0 && s.LastMessageAt.After(got[i-1].LastMessageAt) {
				t.Fatal("summaries not sorted newest first")
			}
		}
		if got[2].Type != TypeGroup {
			t.Fatalf("expected group summary, got %+v", got[2])
		}

		limited, _ := l.RecentConversations(ctx, "alice", 2)
		if len(limited) != 2 || limited[0].With != "bob" || limited[1].With != "carol" {
			t.Fatalf("limit not applied after sorting: %+v", limited)
		}
	})

	t.Run("RecentConversationsUsesOutOfOrderTimestamps", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		mustAppend(t, l, dm("alice", "bob", "later clock", t0.Add(time.Minute)))
		mustAppend(t, l, dm("bob", "alice", "earlier clock", t0))

		got, _ := l.RecentConversations(ctx, "bob", 5)
		if len(got) != 1 || got[0].LastMessageText != "later clock" {
			t.Fatalf("expected the greatest timestamp to win, got %+v", got)
		}
	})

	t.Run("RecentConversationsTiesAreDeterministic", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		a := dm("alice", "bob", "a", t0)
		a.ID = "00000000-0000-0000-0000-00000000000a"
		b := dm("alice", "carol", "b", t0)
		b.ID = "00000000-0000-0000-0000-00000000000b"
		c := dm("alice", "dave", "c", t0)
		c.ID = "00000000-0000-0000-0000-00000000000c"
		mustAppend(t, l, b)
		mustAppend(t, l, c)
		mustAppend(t, l, a)

		got, _ := l.RecentConversations(ctx, "alice", 2)
		if len(got) != 2 || got[0].LastMessageText != "c" || got[1].LastMessageText != "b" {
			t.Fatalf("ties not broken by message id: %+v", got)
		}
	})

	t.Run("ParticipantSnapshotIsHistorical", func(t *testing.T) {
		ctx := context.Background()
		l := newLedger(t)
		mustAppend(t, l, groupMsg("g2", "team", "alice", "before", t0, "alice", "bob"))
		mustAppend(t, l, groupMsg("g2", "team", "alice", "after bob left", t0.Add(time.Second), "alice"))

		got, _ := l.RecentConversations(ctx, "bob", 5)
		if len(got) != 1 || got[0].LastMessageText != "before" {
			t.Fatalf("bob should only see messages from his membership window: %+v", got)
		}
	})

	t.Run("UnknownUserHasNoConversations", func(t *testing.T) {
		got, err := newLedger(t).RecentConversations(context.Background(), "ghost", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Fatalf("expected none, got %+v", got)
		}
	})
}

func TestMemoryLedgerEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(1) // raised to the retention floor
	first := mustAppend(t, l, dm("alice", "bob", "first", t0))
	for i := 0; i < DefaultRetention; i++ {
		mustAppend(t, l, dm("carol", "dave", "filler", t0.Add(time.Duration(i+1)*time.Millisecond)))
	}
	if l.Len() != DefaultRetention {
		t.Fatalf("retained %d messages, want %d", l.Len(), DefaultRetention)
	}

	got, _ := l.Recent(ctx, first.ConversationID, 50)
	if len(got) != 0 {
		t.Fatalf("oldest message should have been evicted, got %d", len(got))
	}
	convs, _ := l.RecentConversations(ctx, "alice", 10)
	if len(convs) != 0 {
		t.Fatalf("evicted conversation still listed: %+v", convs)
	}
}

func TestMemoryLedgerReturnsCopies(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(DefaultRetention)
	stored := mustAppend(t, l, dm("alice", "bob", "hi", t0))
	stored.Participants[0] = "mallory"

	got, _ := l.Recent(ctx, stored.ConversationID, 1)
	if got[0].Participants[0] != "alice" {
		t.Fatal("ledger state was mutated through a returned message")
	}
}

func TestSummaryFor(t *testing.T) {
	m := dm("alice", "Bob", "hi", t0)
	if s := SummaryFor(m, "BOB"); s.With != "alice" {
		t.Fatalf("recipient should see the sender, got %q", s.With)
	}
	if s := SummaryFor(m, "alice"); s.With != "Bob" {
		t.Fatalf("sender should see the recipient, got %q", s.With)
	}
	g := groupMsg("g", "", "alice", "hi", t0, "alice")
	if s := SummaryFor(g, "alice"); s.With != "Group" || s.Type != TypeGroup {
		t.Fatalf("unexpected group summary %+v", s)
	}

	untyped := groupMsg("g", "team", "alice", "hi", t0, "alice")
	untyped.Type = ""
	if s := SummaryFor(untyped, "alice"); s.Type != TypeGroup || s.With != "team" {
		t.Fatalf("untyped group message summarized as %+v", s)
	}
	legacy := dm("alice", "bob", "hi", t0)
	legacy.Type = ""
	if s := SummaryFor(legacy, "alice"); s.Type != TypeDirect || s.With != "bob" {
		t.Fatalf("untyped direct message summarized as %+v", s)
	}
}
