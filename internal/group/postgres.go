package group

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-chat-engine/internal/conversation"
)

const selectGroup = `
	SELECT g.id, g.name, g.created_at,
		COALESCE((SELECT array_agg(m.username ORDER BY m.position) FROM group_members m WHERE m.group_id = g.id), '{}'::text[]),
		COALESCE((SELECT array_agg(m.username_lower ORDER BY m.position) FROM group_members m WHERE m.group_id = g.id), '{}'::text[]),
		COALESCE((SELECT array_agg(a.username_lower) FROM group_admins a WHERE a.group_id = g.id), '{}'::text[])
	FROM chat_groups g`

// PostgresStore keeps groups in PostgreSQL. Membership rows are keyed by
// (group_id, username_lower), so concurrent adds collapse into one row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, g *Group) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO chat_groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
			g.ID, g.Name, g.MembersLower[0], g.CreatedAt)
		if err != nil {
			return err
		}
		for i, m := range g.Members {
			_, err := tx.Exec(ctx,
				`INSERT INTO group_members (group_id, username, username_lower) VALUES ($1, $2, $3)`,
				g.ID, m, g.MembersLower[i])
			if err != nil {
				return err
			}
		}
		for _, a := range g.AdminsLower {
			if _, err := tx.Exec(ctx,
				`INSERT INTO group_admins (group_id, username_lower) VALUES ($1, $2)`, g.ID, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Group, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, selectGroup+` WHERE g.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (s *PostgresStore) AddMember(ctx context.Context, id, username string) (*Group, error) {
	return s.mutate(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, username, username_lower)
			VALUES ($1, $2, $3)
			ON CONFLICT (group_id, username_lower) DO NOTHING
		`, id, username, conversation.Fold(username))
		return err
	})
}

func (s *PostgresStore) RemoveMember(ctx context.Context, id, username string) (*Group, error) {
	return s.mutate(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM group_members WHERE group_id = $1 AND username_lower = $2`,
			id, conversation.Fold(username))
		return err
	})
}

// mutate locks the group row, applies fn and returns the group as committed.
func (s *PostgresStore) mutate(ctx context.Context, id string, fn func(pgx.Tx) error) (*Group, error) {
	found := true
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM chat_groups WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		return fn(tx)
	})
	if err != nil || !found {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) ListForUser(ctx context.Context, usernameLower string) ([]*Group, error) {
	rows, err := s.pool.Query(ctx, selectGroup+`
		WHERE EXISTS (
			SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.username_lower = $1
		)
		ORDER BY g.created_at, g.id
	`, usernameLower)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanGroup(row pgx.Row) (*Group, error) {
	g := &Group{}
	if err := row.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.Members, &g.MembersLower, &g.AdminsLower); err != nil {
		return nil, err
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}
