package message

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-chat-engine/internal/conversation"
)

const messageColumns = `id, type, conv_id, sender, COALESCE(recipient, ''), COALESCE(group_id, ''),
	COALESCE(group_name, ''), content, created_at, participants`

// PostgresLedger stores every message; retention is unbounded.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Append(ctx context.Context, m *Message) (*Message, error) {
	stored := prepare(m)
	_, err := l.pool.Exec(ctx, `
		INSERT INTO messages (id, type, conv_id, sender, recipient, group_id, group_name, content, created_at, participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, stored.ID, stored.Type, stored.ConversationID, stored.From, nullable(stored.To),
		nullable(stored.GroupID), nullable(stored.GroupName), stored.Text, stored.At, stored.Participants)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (l *PostgresLedger) Recent(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}
	rows, err := l.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conv_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// RecentConversations keeps the latest message per conversation with
// DISTINCT ON, then orders those globally and truncates.
func (l *PostgresLedger) RecentConversations(ctx context.Context, username string, limit int) ([]Summary, error) {
	if limit <= 0 {
		return []Summary{}, nil
	}
	rows, err := l.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM (
			SELECT DISTINCT ON (conv_id) *
			FROM messages
			WHERE participants @> ARRAY[$1]::text[]
			ORDER BY conv_id, created_at DESC, id COLLATE "C" DESC
		) latest
		ORDER BY created_at DESC, id COLLATE "C" DESC
		LIMIT $2
	`, conversation.Fold(username), limit)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return summarize(msgs, username, limit), nil
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	defer rows.Close()
	msgs := []*Message{}
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(&m.ID, &m.Type, &m.ConversationID, &m.From, &m.To, &m.GroupID,
			&m.GroupName, &m.Text, &m.At, &m.Participants)
		if err != nil {
			return nil, err
		}
		m.At = m.At.UTC()
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
