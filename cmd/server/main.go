package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"go-chat-engine/internal/chat"
	"go-chat-engine/internal/config"
	"go-chat-engine/internal/group"
	"go-chat-engine/internal/user"
)

func main() {
	// 1. Config & flags
	cfg := config.Load()

	flagSet := pflag.NewFlagSet("chat-server", pflag.ContinueOnError)
	addr := flagSet.String("addr", ":"+cfg.Port, "http service address")
	flagSet.StringVar(&cfg.Env, "env", cfg.Env, "environment (development or production)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// 2. Storage (platform layer)
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("storage unavailable")
	}
	defer st.close()

	// 3. Identity provider
	userService := user.NewService(st.users, cfg.JWTSecret, cfg.TokenTTL)
	var lookup group.UserLookup = userService
	if cfg.AuthURL != "" {
		lookup = user.NewRemoteLookup(cfg.AuthURL)
		logger.Info().Str("auth_url", cfg.AuthURL).Msg("validating group members against remote identity service")
	}

	// 4. Groups and the realtime engine
	groupService := group.NewService(group.NewDirectory(st.groups), lookup, logger)
	engine := chat.NewEngine(chat.NewHub(), groupService.Directory(), st.ledger, chat.Options{
		HistoryLimit:     cfg.HistoryLimit,
		MaxMessageLength: cfg.MaxMessageLength,
	}, logger)

	// 5. Routes
	router := newRouter(cfg, logger, app{
		users:  userService,
		groups: groupService,
		ledger: st.ledger,
		engine: engine,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", *addr).
			Str("env", cfg.Env).
			Str("driver", cfg.StoreDriver).
			Msg("server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
