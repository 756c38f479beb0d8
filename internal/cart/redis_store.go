package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const defaultCartTTL = 30 * 24 * time.Hour

type documentStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(owner string) string
}

type document struct {
	Items     []Line    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStore keeps each cart as one JSON document. Every write refreshes the TTL.
type RedisStore struct {
	client documentStore
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client documentStore, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}, nil
}

func (s *RedisStore) Items(ctx context.Context, owner string) ([]Line, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(owner))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return doc.Items, nil
}

func (s *RedisStore) Put(ctx context.Context, owner string, lines []Line) error {
	if len(lines) == 0 {
		return s.Clear(ctx, owner)
	}
	raw, err := json.Marshal(document{Items: lines, UpdatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, s.client.CartKey(owner), raw, s.ttl); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, s.client.CartKey(owner)); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
