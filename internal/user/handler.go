package user

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/respond"
)

type Handler struct {
	Service *Service
	logger  zerolog.Logger
}

func NewHandler(s *Service, logger zerolog.Logger) *Handler {
	return &Handler{Service: s, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperr.Wrap(apperr.InvalidArgument, "invalid request body", err))
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperr.Wrap(apperr.InvalidArgument, "invalid request body", err))
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, http.StatusOK, res)
}

// Me returns the identity behind the bearer token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		respond.Error(w, h.logger, apperr.New(apperr.Unauthenticated, "missing token"))
		return
	}
	respond.JSON(w, http.StatusOK, id)
}

// Exists answers whether an account with the given username exists.
func (h *Handler) Exists(w http.ResponseWriter, r *http.Request) {
	id, err := h.Service.LookupUsername(r.Context(), chi.URLParam(r, "username"))
	if apperr.Is(err, apperr.NotFound) {
		respond.JSON(w, http.StatusNotFound, map[string]bool{"exists": false})
		return
	}
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"exists": true, "id": id.UserID, "username": id.Username})
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	respond.JSON(w, http.StatusOK, users)
}
