package message

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/group"
	"go-chat-engine/internal/user"
)

func newTestRouter(t *testing.T) (*chi.Mux, Ledger, *group.Service) {
	t.Helper()
	ledger := NewMemoryLedger(DefaultRetention)
	groups := group.NewService(group.NewDirectory(group.NewMemoryStore()), nil, zerolog.Nop())
	h := NewHandler(ledger, groups, 50, 30, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/api/conversations", h.Conversations)
	r.Get("/api/messages", h.DirectHistory)
	r.Get("/api/groups/{id}/messages", h.GroupHistory)
	return r, ledger, groups
}

func get(r http.Handler, path, username string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(user.WithIdentity(req.Context(), user.Identity{UserID: "id-" + username, Username: username}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerDirectHistory(t *testing.T) {
	r, ledger, _ := newTestRouter(t)
	mustAppend(t, ledger, dm("alice", "bob", "hi", time.Now()))

	rec := get(r, "/api/messages?with=BOB", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var msgs []Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("unexpected history %+v", msgs)
	}

	if rec := get(r, "/api/messages", "alice"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing peer: status = %d", rec.Code)
	}
}

func TestHandlerConversations(t *testing.T) {
	r, ledger, _ := newTestRouter(t)
	mustAppend(t, ledger, dm("alice", "bob", "hi", time.Now()))

	rec := get(r, "/api/conversations", "bob")
	var list []Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].With != "alice" || list[0].LastMessageText != "hi" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = get(r, "/api/conversations", "carol")
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty JSON list, got %q", rec.Body.String())
	}
}

func TestHandlerGroupHistoryRequiresMembership(t *testing.T) {
	r, ledger, groups := newTestRouter(t)
	g, err := groups.Create(context.Background(), user.Identity{UserID: "1", Username: "alice"}, "team")
	if err != nil {
		t.Fatal(err)
	}
	mustAppend(t, ledger, groupMsg(g.ID, g.Name, "alice", "hello", time.Now(), "alice"))

	if rec := get(r, "/api/groups/"+g.ID+"/messages", "alice"); rec.Code != http.StatusOK {
		t.Fatalf("member: status = %d", rec.Code)
	}
	if rec := get(r, "/api/groups/"+g.ID+"/messages", "carol"); rec.Code != http.StatusForbidden {
		t.Fatalf("non-member: status = %d", rec.Code)
	}
	if rec := get(r, "/api/groups/missing/messages", "alice"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing group: status = %d", rec.Code)
	}
}
