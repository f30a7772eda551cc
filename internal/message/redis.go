package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"go-chat-engine/internal/conversation"
)

// touchLatest records ARGV[4] as the user's latest message of conversation
// ARGV[1] unless a newer one (score ARGV[2], ties by id ARGV[3]) is there.
//
// KEYS[1] user conversation index (zset), KEYS[2] latest ids (hash),
// KEYS[3] latest messages (hash).
const touchLatest = `
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
local score = tonumber(ARGV[2])
if cur then
  cur = tonumber(cur)
  if score < cur then return 0 end
  if score == cur then
    local prev = redis.call('HGET', KEYS[2], ARGV[1])
    if prev and prev >= ARGV[3] then return 0 end
  end
end
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[4])
return 1
`

// RedisLedger keeps each conversation as a list in append order and a
// per-user index of the latest message per conversation. Retention is
// unbounded.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func convLogKey(conversationID string) string {
	return fmt.Sprintf("chat:conv:%s:log", conversationID)
}

func userConvsKey(user string) string {
	return fmt.Sprintf("chat:user:%s:convs", user)
}

func userLatestIDKey(user string) string {
	return fmt.Sprintf("chat:user:%s:latest_id", user)
}

func userLatestKey(user string) string {
	return fmt.Sprintf("chat:user:%s:latest", user)
}

func (l *RedisLedger) Append(ctx context.Context, m *Message) (*Message, error) {
	stored := prepare(m)
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	score := strconv.FormatInt(stored.At.UnixMicro(), 10)

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, convLogKey(stored.ConversationID), data)
		for _, p := range stored.Participants {
			keys := []string{userConvsKey(p), userLatestIDKey(p), userLatestKey(p)}
			pipe.Eval(ctx, touchLatest, keys, stored.ConversationID, score, stored.ID, data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (l *RedisLedger) Recent(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}
	values, err := l.client.LRange(ctx, convLogKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]*Message, 0, len(values))
	for _, v := range values {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// RecentConversations reads the top of the user's index. Conversations
// tied with the last one at the cut are fetched too, so ties are resolved
// by message id exactly as the other ledgers do.
func (l *RedisLedger) RecentConversations(ctx context.Context, username string, limit int) ([]Summary, error) {
	if limit <= 0 {
		return []Summary{}, nil
	}
	me := conversation.Fold(username)

	top, err := l.client.ZRevRangeWithScores(ctx, userConvsKey(me), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return []Summary{}, nil
	}

	convs := make([]string, 0, len(top))
	seen := make(map[string]bool, len(top))
	for _, z := range top {
		id := z.Member.(string)
		convs = append(convs, id)
		seen[id] = true
	}
	if len(top) == limit {
		edge := strconv.FormatFloat(top[len(top)-1].Score, 'f', -1, 64)
		ties, err := l.client.ZRangeByScore(ctx, userConvsKey(me), &redis.ZRangeBy{Min: edge, Max: edge}).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range ties {
			if !seen[id] {
				convs = append(convs, id)
				seen[id] = true
			}
		}
	}

	values, err := l.client.HMGet(ctx, userLatestKey(me), convs...).Result()
	if err != nil {
		return nil, err
	}
	latest := make([]*Message, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		latest = append(latest, &m)
	}
	return summarize(latest, username, limit), nil
}
