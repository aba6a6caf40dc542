package ingress

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding admitted pac_ids.
const DefaultRedisKey = "benson:ingress:admitted"

// RedisSeenStore shares the admitted-id set across processes. SADD gives the
// atomic add-if-absent the validator relies on.
type RedisSeenStore struct {
	client *redis.Client
	key    string
}

// NewRedisSeenStore connects to Redis. An empty key uses DefaultRedisKey.
func NewRedisSeenStore(addr, password string, db int, key string) *RedisSeenStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSeenStoreFromClient(rdb, key)
}

// NewRedisSeenStoreFromClient wraps an existing client.
func NewRedisSeenStoreFromClient(client *redis.Client, key string) *RedisSeenStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSeenStore{client: client, key: key}
}

// Ping checks connectivity.
func (s *RedisSeenStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis seen store: %w", err)
	}
	return nil
}

func (s *RedisSeenStore) Contains(ctx context.Context, pacID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, pacID).Result()
	if err != nil {
		return false, fmt.Errorf("redis seen store contains: %w", err)
	}
	return ok, nil
}

func (s *RedisSeenStore) Add(ctx context.Context, pacID string) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key, pacID).Result()
	if err != nil {
		return false, fmt.Errorf("redis seen store add: %w", err)
	}
	return n == 1, nil
}

func (s *RedisSeenStore) Remove(ctx context.Context, pacID string) error {
	if err := s.client.SRem(ctx, s.key, pacID).Err(); err != nil {
		return fmt.Errorf("redis seen store remove: %w", err)
	}
	return nil
}

func (s *RedisSeenStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis seen store len: %w", err)
	}
	return int(n), nil
}

func (s *RedisSeenStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis seen store reset: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *RedisSeenStore) Close() error {
	return s.client.Close()
}
