package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/application/runner"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Gate is the rate-gate surface the reconciler consults around every
// outbound platform call.
type Gate interface {
	CanProceed(ctx context.Context, userID uuid.UUID, code platform.Code) (ratelimit.Decision, error)
	RecordSuccess(ctx context.Context, userID uuid.UUID, code platform.Code) error
	RecordFailure(ctx context.Context, userID uuid.UUID, code platform.Code, serverRetryAfter time.Duration) (ratelimit.FailureDecision, error)
}

// maxInlineWait bounds how long a sync run blocks on a gate denial before
// giving up on the item. Longer cooldowns belong to a later run.
const maxInlineWait = 30 * time.Second

// callRetryConfig bounds in-run retries of one platform call.
var callRetryConfig = runner.RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Factor:      2.0,
	MaxDelay:    5 * time.Second,
	MaxJitter:   500 * time.Millisecond,
}

// callPlatform funnels one platform operation through the rate gate and
// the retry runner. The runner absorbs transient failures; rate-limit
// responses that survive it are recorded against the gate, which decides
// between a short inline wait and giving the item up as rate limited.
func callPlatform[R any](ctx context.Context, gate Gate, userID uuid.UUID, code platform.Code, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R

	for {
		decision, err := gate.CanProceed(ctx, userID, code)
		if err != nil {
			return zero, err
		}
		if !decision.Allowed {
			if decision.Wait > maxInlineWait {
				return zero, shared.ErrRateLimited
			}
			if err := sleepCtx(ctx, decision.Wait); err != nil {
				return zero, err
			}
			continue
		}

		value, err := runner.WithRetry(ctx, callRetryConfig, fn)
		if err == nil {
			if recErr := gate.RecordSuccess(ctx, userID, code); recErr != nil {
				return zero, recErr
			}
			return value, nil
		}

		if platform.IsRateLimited(err) {
			serverWait, _ := platform.RetryAfter(err)
			fd, recErr := gate.RecordFailure(ctx, userID, code, serverWait)
			if recErr != nil {
				return zero, recErr
			}
			if !fd.ShouldRetry || fd.Wait > maxInlineWait {
				return zero, shared.ErrRateLimited
			}
			if err := sleepCtx(ctx, fd.Wait); err != nil {
				return zero, err
			}
			continue
		}

		// Permanent, or transient past the runner's budget. Either way the
		// requests went out and count against the caller's windows.
		if recErr := gate.RecordSuccess(ctx, userID, code); recErr != nil {
			return zero, recErr
		}
		return zero, err
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
