package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go-chat-engine/internal/conversation"
)

const maxTxRetries = 16

// RedisStore keeps each group as a JSON document plus a per-user set of
// group ids. Membership changes run in WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func groupKey(id string) string {
	return fmt.Sprintf("chat:group:%s", id)
}

func userGroupsKey(usernameLower string) string {
	return fmt.Sprintf("chat:user:%s:groups", usernameLower)
}

func (s *RedisStore) Insert(ctx context.Context, g *Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, groupKey(g.ID), data, 0)
		for _, m := range g.MembersLower {
			pipe.SAdd(ctx, userGroupsKey(m), g.ID)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Group, error) {
	data, err := s.client.Get(ctx, groupKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *RedisStore) AddMember(ctx context.Context, id, username string) (*Group, error) {
	return s.mutate(ctx, id, username, true)
}

func (s *RedisStore) RemoveMember(ctx context.Context, id, username string) (*Group, error) {
	return s.mutate(ctx, id, username, false)
}

func (s *RedisStore) mutate(ctx context.Context, id, username string, add bool) (*Group, error) {
	key := groupKey(id)
	lower := conversation.Fold(username)

	var out *Group
	txf := func(tx *redis.Tx) error {
		out = nil
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var g Group
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		out = &g

		var changed bool
		if add {
			changed = g.addMember(username)
		} else {
			changed = g.removeMember(username)
		}
		if !changed {
			return nil
		}

		payload, err := json.Marshal(&g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			if add {
				pipe.SAdd(ctx, userGroupsKey(lower), id)
			} else {
				pipe.SRem(ctx, userGroupsKey(lower), id)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("group %s: too many concurrent updates", id)
}

func (s *RedisStore) ListForUser(ctx context.Context, usernameLower string) ([]*Group, error) {
	ids, err := s.client.SMembers(ctx, userGroupsKey(usernameLower)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = groupKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	groups := make([]*Group, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var g Group
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			continue
		}
		if g.HasMember(usernameLower) {
			groups = append(groups, &g)
		}
	}
	return groups, nil
}
