package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-chat-engine/internal/config"
	"go-chat-engine/internal/db"
	"go-chat-engine/internal/group"
	"go-chat-engine/internal/message"
	"go-chat-engine/internal/user"
)

// stores is the storage backend chosen with STORE_DRIVER.
type stores struct {
	users  user.Repository
	groups group.Store
	ledger message.Ledger
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.NewDatabase(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database schema initialized")

		return &stores{
			users:  user.NewPostgresRepository(database.Pool),
			groups: group.NewPostgresStore(database.Pool),
			ledger: message.NewPostgresLedger(database.Pool),
			close:  database.Close,
		}, nil

	case config.DriverRedis:
		client, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("connected to Redis")

		return &stores{
			users:  user.NewRedisRepository(client),
			groups: group.NewRedisStore(client),
			ledger: message.NewRedisLedger(client),
			close:  func() { client.Close() },
		}, nil

	default:
		logger.Warn().Int("retention", cfg.MessageRetention).Msg("using in-memory storage, data is lost on restart")
		return &stores{
			users:  user.NewMemoryRepository(),
			groups: group.NewMemoryStore(),
			ledger: message.NewMemoryLedger(cfg.MessageRetention),
			close:  func() {},
		}, nil
	}
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), nil
}
