package user

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-chat-engine/internal/apperr"
	"go-chat-engine/internal/conversation"
)

const searchLimit = 10

var errDuplicate = apperr.New(apperr.Conflict, "username already exists")

// Repository stores accounts. Usernames are unique case-insensitively and
// GetUserByUsername returns nil when no account matches.
type Repository interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
}

type MemoryRepository struct {
	mu     sync.RWMutex
	byName map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byName: make(map[string]*User)}
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := conversation.Fold(user.Username)
	if _, ok := r.byName[key]; ok {
		return nil, errDuplicate
	}
	stored := *user
	r.byName[key] = &stored
	return user, nil
}

func (r *MemoryRepository) GetUserByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byName[conversation.Fold(username)]
	if !ok {
		return nil, nil
	}
	found := *u
	return &found, nil
}

func (r *MemoryRepository) SearchUsers(_ context.Context, query string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := conversation.Fold(query)
	var users []User
	for key, u := range r.byName {
		if strings.Contains(key, q) {
			users = append(users, User{ID: u.ID, Username: u.Username})
		}
	}
	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Username, b.Username) })
	if len(users) > searchLimit {
		users = users[:searchLimit]
	}
	return users, nil
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := "INSERT INTO users (id, username, username_lower, password) VALUES ($1, $2, $3, $4)"
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, conversation.Fold(user.Username), user.Password)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password FROM users WHERE username_lower = $1"

	err := r.pool.QueryRow(ctx, query, conversation.Fold(username)).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	q := `SELECT id, username FROM users WHERE username ILIKE $1 ORDER BY username LIMIT 10`
	rows, err := r.pool.Query(ctx, q, "%"+strings.TrimSpace(query)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
