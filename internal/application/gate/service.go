// Package gate is the application-level rate gate: the single checkpoint
// every outbound platform call goes through.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
	"go.uber.org/zap"
)

// LimitsProvider resolves the current quota for a platform. Implementations
// read hot-reloadable configuration; the gate never caches the result.
type LimitsProvider interface {
	LimitsFor(code platform.Code) ratelimit.Limits
}

// StateCache is a short-TTL read cache in front of the persisted state.
// The database row stays authoritative; the cache only absorbs repeated
// reads between writes and is invalidated on every mutation.
type StateCache interface {
	Get(userID uuid.UUID, code platform.Code) (*ratelimit.State, bool)
	Set(userID uuid.UUID, code platform.Code, state *ratelimit.State)
	Invalidate(userID uuid.UUID, code platform.Code)
}

// Service enforces per-user, per-platform request quotas and cooldowns.
type Service struct {
	states ratelimit.Repository
	cache  StateCache
	limits LimitsProvider
	alerts alert.Repository
	logger *zap.Logger
}

// NewService creates a rate gate service.
func NewService(
	states ratelimit.Repository,
	cache StateCache,
	limits LimitsProvider,
	alerts alert.Repository,
	logger *zap.Logger,
) *Service {
	return &Service{
		states: states,
		cache:  cache,
		limits: limits,
		alerts: alerts,
		logger: logger,
	}
}

// CanProceed decides whether a request to the platform may go out now.
// Denials carry the wait duration; callers sleep or reschedule, they never
// busy-poll.
func (s *Service) CanProceed(ctx context.Context, userID uuid.UUID, code platform.Code) (ratelimit.Decision, error) {
	state, err := s.loadState(ctx, userID, code)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	decision := state.Check(time.Now(), s.limits.LimitsFor(code))
	if !decision.Allowed {
		s.logger.Debug("rate gate denied request",
			zap.String("user_id", userID.String()),
			zap.String("platform", code.String()),
			zap.String("reason", decision.Reason),
			zap.Duration("wait", decision.Wait),
		)
	}
	return decision, nil
}

// RecordSuccess counts a completed request against the caller's windows.
func (s *Service) RecordSuccess(ctx context.Context, userID uuid.UUID, code platform.Code) error {
	state, err := s.loadState(ctx, userID, code)
	if err != nil {
		return err
	}

	state.RecordSuccess(time.Now())
	return s.persist(ctx, state)
}

// RecordFailure registers a rate-limit response from the platform and
// returns how long to wait and whether another attempt is worthwhile.
// Streaks past the alert threshold raise a persisted alert.
func (s *Service) RecordFailure(ctx context.Context, userID uuid.UUID, code platform.Code, serverRetryAfter time.Duration) (ratelimit.FailureDecision, error) {
	state, err := s.loadState(ctx, userID, code)
	if err != nil {
		return ratelimit.FailureDecision{}, err
	}

	decision := state.RecordFailure(time.Now(), s.limits.LimitsFor(code), serverRetryAfter)

	s.logger.Warn("platform rate limit hit",
		zap.String("user_id", userID.String()),
		zap.String("platform", code.String()),
		zap.Int("consecutive_errors", state.ConsecutiveErrors),
		zap.Duration("wait", decision.Wait),
		zap.Bool("should_retry", decision.ShouldRetry),
	)

	if state.ShouldAlert() {
		a := alert.New(userID, alert.KindRateLimit, alert.SeverityWarning,
			fmt.Sprintf("repeated rate limiting by %s", code),
			map[string]any{
				"platform":           code.String(),
				"consecutive_errors": state.ConsecutiveErrors,
				"throttled_until":    state.ThrottleUntil,
			})
		if saveErr := s.alerts.Save(ctx, a); saveErr != nil {
			s.logger.Error("failed to save rate limit alert", zap.Error(saveErr))
		}
	}

	if err := s.persist(ctx, state); err != nil {
		return ratelimit.FailureDecision{}, err
	}
	return decision, nil
}

// Status returns the current gate state for inspection.
func (s *Service) Status(ctx context.Context, userID uuid.UUID, code platform.Code) (*ratelimit.State, error) {
	return s.loadState(ctx, userID, code)
}

// loadState returns the cached state when fresh, otherwise reads the
// authoritative row, creating one on first use.
func (s *Service) loadState(ctx context.Context, userID uuid.UUID, code platform.Code) (*ratelimit.State, error) {
	if !code.IsValid() {
		return nil, ratelimit.ErrInvalidPlatform
	}
	if cached, ok := s.cache.Get(userID, code); ok {
		return cached, nil
	}

	state, err := s.states.Find(ctx, userID, code)
	if errors.Is(err, ratelimit.ErrStateNotFound) {
		state, err = ratelimit.NewState(userID, code)
		if err != nil {
			return nil, err
		}
		if err := s.states.Upsert(ctx, state); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	s.cache.Set(userID, code, state)
	return state, nil
}

func (s *Service) persist(ctx context.Context, state *ratelimit.State) error {
	s.cache.Invalidate(state.UserID, state.Platform)
	return s.states.Upsert(ctx, state)
}
