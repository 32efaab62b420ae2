package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces replay keys in a shared Redis
const DefaultKeyPrefix = "pbr:replay:"

// pendingMarker is stored while a claimed operation runs. Completed entries
// hold a JSON document, which is never empty.
const pendingMarker = ""

// RedisReplayStore implements ReplayStore on Redis so entries survive a
// bridge restart and are shared between processes on the host.
type RedisReplayStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisReplayStore connects to Redis and verifies the connection
func NewRedisReplayStore(ctx context.Context, cfg RedisConfig) (*RedisReplayStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisReplayStoreWithClient(client, DefaultKeyPrefix), nil
}

// NewRedisReplayStoreWithClient creates a store with an existing Redis client
func NewRedisReplayStoreWithClient(client *redis.Client, keyPrefix string) *RedisReplayStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisReplayStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim reserves key with SETNX so only one caller runs the operation
func (s *RedisReplayStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim replay key: %w", err)
	}
	return ok, nil
}

// Load returns the completed response for key
func (s *RedisReplayStore) Load(ctx context.Context, key string) (json.RawMessage, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load replay key: %w", err)
	}
	if len(val) == 0 {
		return nil, false, nil
	}
	return json.RawMessage(val), true, nil
}

// Complete stores the response for key and restarts its TTL
func (s *RedisReplayStore) Complete(ctx context.Context, key string, resp json.RawMessage, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, []byte(resp), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store replay response: %w", err)
	}
	return nil
}

// Release drops key so the operation may run again
func (s *RedisReplayStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release replay key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisReplayStore) Close() error {
	return s.client.Close()
}

var _ ReplayStore = (*RedisReplayStore)(nil)
