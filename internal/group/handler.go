package group

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/respond"
	"go-chat-engine/internal/user"
)

type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the group API. Every route expects an authenticated request.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/{id}/members", h.AddMember)
	r.Delete("/{id}/members/{username}", h.RemoveMember)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, _ := user.FromContext(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperr.Wrap(apperr.InvalidArgument, "invalid request body", err))
		return
	}
	g, err := h.service.Create(r.Context(), caller, req.Name)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.logger.Info().Str("group_id", g.ID).Str("creator", caller.Username).Msg("group created")
	respond.JSON(w, http.StatusCreated, g.View())
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := user.FromContext(r.Context())
	groups, err := h.service.List(r.Context(), caller)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	views := make([]View, 0, len(groups))
	for _, g := range groups {
		views = append(views, g.View())
	}
	respond.JSON(w, http.StatusOK, views)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	caller, _ := user.FromContext(r.Context())
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, h.logger, apperr.Wrap(apperr.InvalidArgument, "invalid request body", err))
		return
	}
	g, err := h.service.AddMember(r.Context(), caller, chi.URLParam(r, "id"), req.Username)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, g.View())
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	caller, _ := user.FromContext(r.Context())
	g, err := h.service.RemoveMember(r.Context(), caller, chi.URLParam(r, "id"), chi.URLParam(r, "username"))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, g.View())
}
