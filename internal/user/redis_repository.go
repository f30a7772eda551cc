package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"go-chat-engine/internal/conversation"
)

const userKeyPrefix = "chat:users:"

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// userRecord carries the password hash, which User hides from JSON.
type userRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func userKey(username string) string {
	return userKeyPrefix + conversation.Fold(username)
}

func (r *RedisRepository) CreateUser(ctx context.Context, user *User) (*User, error) {
	data, err := json.Marshal(userRecord{ID: user.ID, Username: user.Username, Password: user.Password})
	if err != nil {
		return nil, err
	}
	created, err := r.client.SetNX(ctx, userKey(user.Username), data, 0).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, errDuplicate
	}
	return user, nil
}

func (r *RedisRepository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	data, err := r.client.Get(ctx, userKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &User{ID: rec.ID, Username: rec.Username, Password: rec.Password}, nil
}

func (r *RedisRepository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	q := conversation.Fold(query)
	var users []User
	iter := r.client.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if !strings.Contains(strings.TrimPrefix(iter.Val(), userKeyPrefix), q) {
			continue
		}
		u, err := r.GetUserByUsername(ctx, strings.TrimPrefix(iter.Val(), userKeyPrefix))
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, User{ID: u.ID, Username: u.Username})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Username, b.Username) })
	if len(users) > searchLimit {
		users = users[:searchLimit]
	}
	return users, nil
}
