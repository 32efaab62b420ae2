package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/infrastructure/config"
)

// ReplayStoreFactory creates replay stores based on configuration
type ReplayStoreFactory struct {
	cfg                   config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ReplayStoreFactoryOption is a functional option for configuring the factory
type ReplayStoreFactoryOption func(*ReplayStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ReplayStoreFactoryOption {
	return func(f *ReplayStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory store. Default is true.
func WithInMemoryFallback(allow bool) ReplayStoreFactoryOption {
	return func(f *ReplayStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewReplayStoreFactory creates a new factory
func NewReplayStoreFactory(cfg config.CacheConfig, opts ...ReplayStoreFactoryOption) *ReplayStoreFactory {
	f := &ReplayStoreFactory{
		cfg:                   cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the store named by cache.driver
func (f *ReplayStoreFactory) CreateStore(ctx context.Context) (ReplayStore, error) {
	if f.cfg.Driver != "redis" {
		f.logger.Info("Using in-memory replay store")
		return NewInMemoryReplayStore(f.cfg.ReplayTTL), nil
	}

	store, err := NewRedisReplayStore(ctx, RedisConfig{
		Host:     f.cfg.Redis.Host,
		Port:     f.cfg.Redis.Port,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err == nil {
		f.logger.Info("Using Redis replay store",
			zap.String("host", f.cfg.Redis.Host),
			zap.Int("port", f.cfg.Redis.Port),
		)
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis replay store unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory replay store", zap.Error(err))
	return NewInMemoryReplayStore(f.cfg.ReplayTTL), nil
}
