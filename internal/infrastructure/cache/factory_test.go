package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/platformbridge/backend/internal/infrastructure/config"
)

// unreachableRedis points at a port nothing listens on
func unreachableRedis() config.CacheConfig {
	return config.CacheConfig{
		Driver:    "redis",
		ReplayTTL: time.Minute,
		Redis:     config.RedisConfig{Host: "127.0.0.1", Port: 1},
	}
}

func TestReplayStoreFactory_Memory(t *testing.T) {
	f := NewReplayStoreFactory(config.CacheConfig{Driver: "memory", ReplayTTL: time.Minute})

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryReplayStore{}, store)
}

func TestReplayStoreFactory_RedisFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewReplayStoreFactory(unreachableRedis(), WithLogger(zap.New(core)))

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &InMemoryReplayStore{}, store)
	assert.Equal(t, 1, logs.FilterMessage("Redis unavailable, falling back to in-memory replay store").Len())
}

func TestReplayStoreFactory_RedisRequired(t *testing.T) {
	f := NewReplayStoreFactory(unreachableRedis(), WithInMemoryFallback(false))

	store, err := f.CreateStore(context.Background())
	require.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "redis replay store unavailable")
}
