// Package runner executes batched platform operations with bounded
// concurrency and retry on transient failures.
package runner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/syncbridge/backend/internal/domain/platform"
)

// DefaultConcurrency bounds in-flight operations per chunk.
const DefaultConcurrency = 5

// Result pairs one item's output with its error. A failed item never
// aborts its batch; callers inspect results per item.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// RunBatched applies fn to every item with at most concurrency operations
// in flight. Items are processed in strict chunks: all operations of one
// chunk settle before the next chunk starts, so a burst never exceeds the
// concurrency bound even when some operations are slow. Results keep input
// order. Returns early only when ctx is cancelled; remaining items get
// ctx.Err().
func RunBatched[T, R any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]Result[R], len(items))

	for start := 0; start < len(items); start += concurrency {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				results[i] = Result[R]{Index: i, Err: err}
			}
			return results
		}

		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value, err := fn(ctx, items[i])
				results[i] = Result[R]{Index: i, Value: value, Err: err}
			}(i)
		}
		wg.Wait()
	}
	return results
}

// RetryConfig controls WithRetry's backoff schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	// MaxJitter is added uniformly at random to every delay
	MaxJitter time.Duration
}

// DefaultRetryConfig retries three times with exponential backoff and up
// to one second of jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
		MaxJitter:   time.Second,
	}
}

// WithRetry runs fn until it succeeds, returns a permanent error, or the
// attempt budget is spent. Only retryable failures (timeouts, connection
// resets, 429/502/503/504) are retried; a server-provided Retry-After
// overrides the computed backoff for that attempt.
func WithRetry[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 2.0
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if !platform.IsRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		delay := backoffDelay(cfg, attempt, err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func backoffDelay(cfg RetryConfig, attempt int, err error) time.Duration {
	if serverWait, ok := platform.RetryAfter(err); ok {
		return serverWait
	}
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Factor)
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.MaxJitter)))
	}
	return delay
}
