package registry

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis key layout: active tokens live in a set, delivery marks and
// canonical rotations in hashes keyed by token.
const (
	tokensKey    = "fcm:registry:tokens"
	deliveryKey  = "fcm:registry:delivery"
	canonicalKey = "fcm:registry:canonical"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps the token registry in Redis.
type RedisStore struct {
	client *goredis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStoreWithClient(client)
}

func NewRedisStoreWithClient(client *goredis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Replace(ctx context.Context, oldID, newID string) error {
	if oldID == "" || newID == "" {
		return fmt.Errorf("token ids are required")
	}

	if err := s.client.SRem(ctx, tokensKey, oldID).Err(); err != nil {
		return fmt.Errorf("failed to drop replaced token: %w", err)
	}
	if err := s.client.SAdd(ctx, tokensKey, newID).Err(); err != nil {
		return fmt.Errorf("failed to add canonical token: %w", err)
	}
	if err := s.client.HSet(ctx, canonicalKey, oldID, newID).Err(); err != nil {
		return fmt.Errorf("failed to record canonical rotation: %w", err)
	}
	if err := s.client.HDel(ctx, deliveryKey, oldID).Err(); err != nil {
		return fmt.Errorf("failed to clear delivery mark: %w", err)
	}

	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("token id is required")
	}

	if err := s.client.SRem(ctx, tokensKey, id).Err(); err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	if err := s.client.HDel(ctx, deliveryKey, id).Err(); err != nil {
		return fmt.Errorf("failed to clear delivery mark: %w", err)
	}

	return nil
}

func (s *RedisStore) MarkDelivered(ctx context.Context, id, messageID string) error {
	if id == "" {
		return fmt.Errorf("token id is required")
	}

	if err := s.client.SAdd(ctx, tokensKey, id).Err(); err != nil {
		return fmt.Errorf("failed to keep token active: %w", err)
	}
	if err := s.client.HSet(ctx, deliveryKey, id, messageID).Err(); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
