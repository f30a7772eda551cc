package message

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/conversation"
	"go-chat-engine/internal/group"
	"go-chat-engine/internal/respond"
	"go-chat-engine/internal/user"
)

// GroupAccess resolves a group the caller is allowed to read.
type GroupAccess interface {
	Get(ctx context.Context, caller user.Identity, groupID string) (*group.Group, error)
}

// Handler serves point-in-time reads of history and the conversation list.
type Handler struct {
	ledger            Ledger
	groups            GroupAccess
	historyLimit      int
	conversationLimit int
	logger            zerolog.Logger
}

func NewHandler(ledger Ledger, groups GroupAccess, historyLimit, conversationLimit int, logger zerolog.Logger) *Handler {
	return &Handler{
		ledger:            ledger,
		groups:            groups,
		historyLimit:      historyLimit,
		conversationLimit: conversationLimit,
		logger:            logger,
	}
}

// Conversations lists the caller's recent direct and group conversations.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	me, _ := user.FromContext(r.Context())
	list, err := h.ledger.RecentConversations(r.Context(), me.Username, h.conversationLimit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, list)
}

// DirectHistory returns the recent messages exchanged with ?with=<peer>.
func (h *Handler) DirectHistory(w http.ResponseWriter, r *http.Request) {
	me, _ := user.FromContext(r.Context())
	peer := strings.TrimSpace(r.URL.Query().Get("with"))
	if peer == "" {
		respond.Error(w, h.logger, apperr.New(apperr.InvalidArgument, "missing query parameter: with"))
		return
	}
	convID, err := conversation.DirectID(me.Username, peer)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.writeHistory(w, r, convID)
}

// GroupHistory returns the recent messages of a group the caller belongs to.
func (h *Handler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	me, _ := user.FromContext(r.Context())
	g, err := h.groups.Get(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.writeHistory(w, r, g.ConversationID())
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, convID string) {
	msgs, err := h.ledger.Recent(r.Context(), convID, h.historyLimit)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, msgs)
}
