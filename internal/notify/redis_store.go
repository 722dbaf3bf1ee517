package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	recentKey = "notifications:recent"
	// maxKept bounds the recent list; older notifications age out.
	maxKept = 1000
)

// RedisStore implements Store on a Redis list, newest first.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save pushes the notification onto the recent list and trims it.
func (s *RedisStore) Save(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, recentKey, data)
	pipe.LTrim(ctx, recentKey, 0, maxKept-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// ListRecent returns up to limit notifications, newest first.
func (s *RedisStore) ListRecent(ctx context.Context, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > maxKept {
		limit = 100
	}

	raw, err := s.client.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	out := make([]*Notification, 0, len(raw))
	for _, item := range raw {
		n := &Notification{}
		if err := json.Unmarshal([]byte(item), n); err != nil {
			// A corrupt entry should not hide the rest of the list.
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
