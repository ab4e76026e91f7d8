package cache

import (
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	redisConfig      RedisConfig
	fallbackToMemory bool
	logger           *zap.Logger
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(redisConfig RedisConfig) *IdempotencyStoreFactory {
	return &IdempotencyStoreFactory{
		redisConfig:      redisConfig,
		fallbackToMemory: true,
	}
}

// WithLogger sets the logger for the factory
func (f *IdempotencyStoreFactory) WithLogger(log *zap.Logger) *IdempotencyStoreFactory {
	f.logger = log
	return f
}

// WithInMemoryFallback configures whether to fall back to in-memory store
// when Redis is unavailable
func (f *IdempotencyStoreFactory) WithInMemoryFallback(fallback bool) *IdempotencyStoreFactory {
	f.fallbackToMemory = fallback
	return f
}

// CreateStore creates an idempotency store, preferring Redis when reachable
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(f.redisConfig)
	if err == nil {
		if f.logger != nil {
			f.logger.Info("using Redis idempotency store",
				zap.String("host", f.redisConfig.Host),
				zap.Int("port", f.redisConfig.Port),
			)
		}
		return store, nil
	}

	if !f.fallbackToMemory {
		return nil, err
	}

	if f.logger != nil {
		f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.Error(err),
		)
	}
	return NewInMemoryIdempotencyStore(), nil
}
