package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultReplayTTL = 15 * time.Minute

// ReplayStore remembers the answer given for a tool call id so a webhook
// retry gets the same reply instead of booking twice.
type ReplayStore interface {
	Lookup(ctx context.Context, toolCallID string) (ToolResult, bool, error)
	Remember(ctx context.Context, res ToolResult) error
}

// RedisReplayStore keeps replies in Redis with a TTL.
type RedisReplayStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReplayStore(client *redis.Client, ttl time.Duration) *RedisReplayStore {
	if client == nil {
		panic("voice: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &RedisReplayStore{client: client, ttl: ttl}
}

func (s *RedisReplayStore) key(toolCallID string) string {
	return "voice:toolcall:" + toolCallID
}

func (s *RedisReplayStore) Lookup(ctx context.Context, toolCallID string) (ToolResult, bool, error) {
	data, err := s.client.Get(ctx, s.key(toolCallID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ToolResult{}, false, nil
	}
	if err != nil {
		return ToolResult{}, false, fmt.Errorf("voice: replay lookup: %w", err)
	}
	var res ToolResult
	if err := json.Unmarshal(data, &res); err != nil {
		return ToolResult{}, false, fmt.Errorf("voice: replay decode: %w", err)
	}
	return res, true, nil
}

// Remember stores res unless an answer for the same id is already stored.
func (s *RedisReplayStore) Remember(ctx context.Context, res ToolResult) error {
	if res.ToolCallID == "" {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("voice: replay encode: %w", err)
	}
	if err := s.client.SetNX(ctx, s.key(res.ToolCallID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("voice: replay store: %w", err)
	}
	return nil
}
