package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/chat"
	"go-chat-engine/internal/config"
	"go-chat-engine/internal/group"
	"go-chat-engine/internal/message"
	myMiddleware "go-chat-engine/internal/middleware"
	"go-chat-engine/internal/respond"
	"go-chat-engine/internal/user"
)

// app bundles the services the router exposes.
type app struct {
	users  *user.Service
	groups *group.Service
	ledger message.Ledger
	engine *chat.Engine
}

func newRouter(cfg *config.Config, logger zerolog.Logger, a app) *chi.Mux {
	userHandler := user.NewHandler(a.users, logger)
	groupHandler := group.NewHandler(a.groups, logger)
	messageHandler := message.NewHandler(a.ledger, a.groups, cfg.HistoryLimit, cfg.ConversationLimit, logger)
	chatHandler := chat.NewHandler(a.engine, cfg.CORSOrigin, logger)
	authMiddleware := myMiddleware.NewAuthMiddleware(a.users)

	r := chi.NewRouter()
	r.Use(myMiddleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(myMiddleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSOrigin),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/users/{username}", userHandler.Exists)
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/me", userHandler.Me)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/conversations", messageHandler.Conversations)
		r.Get("/api/messages", messageHandler.DirectHistory)
		r.Route("/api/groups", func(r chi.Router) {
			groupHandler.Routes(r)
			r.Get("/{id}/messages", messageHandler.GroupHistory)
		})

		// WebSocket (real-time)
		r.Get("/ws", chatHandler.ServeWs)
	})

	return r
}

func allowedOrigins(origin string) []string {
	var out []string
	for _, o := range strings.Split(origin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
