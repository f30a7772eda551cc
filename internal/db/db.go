package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Database{Pool: pool}, nil
}

func (d *Database) Close() {
	d.Pool.Close()
}

// AutoMigrate creates the schema used by the user, group and message stores.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username VARCHAR(50) NOT NULL,
            username_lower VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,

		`CREATE TABLE IF NOT EXISTS chat_groups (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            created_by TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS group_members (
            group_id TEXT REFERENCES chat_groups(id) ON DELETE CASCADE,
            username TEXT NOT NULL,
            username_lower TEXT NOT NULL,
            position BIGSERIAL,
            PRIMARY KEY (group_id, username_lower)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (username_lower)`,

		`CREATE TABLE IF NOT EXISTS group_admins (
            group_id TEXT REFERENCES chat_groups(id) ON DELETE CASCADE,
            username_lower TEXT NOT NULL,
            PRIMARY KEY (group_id, username_lower)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT UNIQUE NOT NULL,
            type VARCHAR(10) CHECK (type IN ('dm', 'group')) NOT NULL,
            conv_id TEXT NOT NULL,
            sender TEXT NOT NULL,
            recipient TEXT,
            group_id TEXT,
            group_name TEXT,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            participants TEXT[] NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages (conv_id, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_participants ON messages USING GIN (participants)`,
	}

	for _, query := range queries {
		if _, err := d.Pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
