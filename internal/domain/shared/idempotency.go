package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores already-seen trigger keys so that re-delivered
// webhooks and duplicate manual triggers do not publish the same event twice.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for trigger deduplication
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed keys. After this duration the
	// same key is accepted again.
	TTL time.Duration

	// Enabled determines whether deduplication is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
