package chat

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/user"
)

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	engine   *Engine
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler accepts upgrades from the comma-separated allowedOrigins, or
// from any origin when the list is "*" or empty.
func NewHandler(engine *Engine, allowedOrigins string, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

func checkOrigin(list string) func(*http.Request) bool {
	var allowed []string
	for _, o := range strings.Split(list, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowed = nil
			break
		}
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	return func(r *http.Request) bool {
		origin := strings.TrimRight(r.Header.Get("Origin"), "/")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(origin, o) {
				return true
			}
		}
		return false
	}
}

// ServeWs runs behind the auth middleware, so the identity is already set.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := user.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user", identity.Username).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, identity)
	h.engine.Connect(client)

	go client.writePump()
	go client.readPump(h.engine)
}
