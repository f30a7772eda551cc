package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/group"
	"go-chat-engine/internal/message"
	"go-chat-engine/internal/middleware"
	"go-chat-engine/internal/user"
)

func newTestServer(t *testing.T) (*httptest.Server, *user.Service) {
	t.Helper()
	users := user.NewService(user.NewMemoryRepository(), "test-secret", time.Hour)
	groups := group.NewDirectory(group.NewMemoryStore())
	engine := NewEngine(NewHub(), groups, message.NewMemoryLedger(message.DefaultRetention), Options{}, zerolog.Nop())
	auth := middleware.NewAuthMiddleware(users)

	r := chi.NewRouter()
	r.With(auth.Handle).Get("/ws", NewHandler(engine, "*", zerolog.Nop()).ServeWs)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, users
}

func register(t *testing.T, users *user.Service, name string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := users.Register(ctx, &user.RegisterRequest{Username: name, Password: "password123"}); err != nil {
		t.Fatal(err)
	}
	resp, err := users.Login(ctx, &user.RegisterRequest{Username: name, Password: "password123"})
	if err != nil {
		t.Fatal(err)
	}
	return resp.AccessToken
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, _ := json.Marshal(data)
	if err := conn.WriteJSON(Envelope{Event: event, Data: raw}); err != nil {
		t.Fatal(err)
	}
}

// await reads frames until one with the given event arrives.
func await(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without a token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestWebsocketDirectConversation(t *testing.T) {
	srv, users := newTestServer(t)
	alice := dial(t, srv, register(t, users, "alice"))
	bob := dial(t, srv, register(t, users, "bob"))

	// A round trip proves bob's connection is registered.
	send(t, bob, EventOpenDirect, OpenDirect{With: "carol"})
	await(t, bob, EventDirectHistory)

	send(t, alice, EventOpenDirect, OpenDirect{With: "BOB"})
	h := decodeData[DirectHistory](t, await(t, alice, EventDirectHistory))
	if h.ConversationID != "dm:alice__bob" {
		t.Fatalf("conversation id = %q", h.ConversationID)
	}

	send(t, alice, EventSendDirect, SendDirect{To: "BOB", Text: "hi"})

	s := decodeData[message.Summary](t, await(t, bob, EventNotify))
	if s.With != "alice" || s.LastMessageText != "hi" {
		t.Fatalf("bob's notification = %+v", s)
	}
	m := decodeData[message.Message](t, await(t, alice, EventDirectMessage))
	if m.Text != "hi" || m.From != "alice" {
		t.Fatalf("alice's echo = %+v", m)
	}

	send(t, bob, EventOpenDirect, OpenDirect{With: "alice"})
	h = decodeData[DirectHistory](t, await(t, bob, EventDirectHistory))
	if len(h.Messages) != 1 || h.Messages[0].Text != "hi" {
		t.Fatalf("bob's history = %+v", h.Messages)
	}
}

func TestWebsocketErrorsKeepConnectionOpen(t *testing.T) {
	srv, users := newTestServer(t)
	alice := dial(t, srv, register(t, users, "alice"))

	send(t, alice, EventOpenDirect, OpenDirect{With: "ALICE"})
	p := decodeData[ErrorPayload](t, await(t, alice, EventError))
	if p.Code != "self_chat_rejected" {
		t.Fatalf("code = %s", p.Code)
	}

	send(t, alice, EventOpenGroup, OpenGroup{GroupID: "nope"})
	p = decodeData[ErrorPayload](t, await(t, alice, EventError))
	if p.Code != "not_found" {
		t.Fatalf("code = %s", p.Code)
	}

	send(t, alice, EventOpenDirect, OpenDirect{With: "bob"})
	await(t, alice, EventDirectHistory)
}
