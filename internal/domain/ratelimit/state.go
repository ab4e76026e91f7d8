package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/platform"
)

var (
	ErrStateNotFound    = errors.New("ratelimit: state not found")
	ErrInvalidUserID    = errors.New("ratelimit: invalid user ID")
	ErrInvalidPlatform  = errors.New("ratelimit: invalid platform code")
	ErrRetriesExhausted = errors.New("ratelimit: consecutive failures exhausted retry budget")
)

const (
	// MaxConsecutiveFailures is the point at which the gate stops retrying
	MaxConsecutiveFailures = 5
	// AlertThreshold is the consecutive-error count above which an alert is emitted
	AlertThreshold = 2
)

// Limits is the per-platform request quota configuration. It is persisted,
// overridable per platform, and hot-reloadable.
type Limits struct {
	MaxRequestsPerMinute int
	MaxRequestsPerHour   int
	BurstLimit           int
	BaseBackoff          time.Duration
	BackoffMultiplier    float64
	MaxBackoff           time.Duration
}

// DefaultLimits returns the built-in quota for a platform.
func DefaultLimits(code platform.Code) Limits {
	switch code {
	case platform.CodeShopify:
		return Limits{
			MaxRequestsPerMinute: 40,
			MaxRequestsPerHour:   2000,
			BurstLimit:           10,
			BaseBackoff:          time.Second,
			BackoffMultiplier:    2.0,
			MaxBackoff:           5 * time.Minute,
		}
	case platform.CodeNetSuite:
		return Limits{
			MaxRequestsPerMinute: 100,
			MaxRequestsPerHour:   5000,
			BurstLimit:           25,
			BaseBackoff:          time.Second,
			BackoffMultiplier:    2.0,
			MaxBackoff:           5 * time.Minute,
		}
	default:
		return Limits{
			MaxRequestsPerMinute: 30,
			MaxRequestsPerHour:   1000,
			BurstLimit:           5,
			BaseBackoff:          time.Second,
			BackoffMultiplier:    2.0,
			MaxBackoff:           5 * time.Minute,
		}
	}
}

// Decision is the answer to "may this caller hit the platform right now".
type Decision struct {
	Allowed bool
	Wait    time.Duration
	Reason  string
}

// FailureDecision tells the caller how to react to a rate-limit failure.
type FailureDecision struct {
	Wait        time.Duration
	ShouldRetry bool
}

// State is the rate-gate bookkeeping for one (user, platform) pair. It is
// the single authority consulted before every outbound platform call and is
// persisted so cooldowns survive a process restart.
type State struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Platform           platform.Code
	RequestsThisMinute int
	RequestsThisHour   int
	LastRequestTime    time.Time
	Throttled          bool
	ThrottleUntil      *time.Time
	ConsecutiveErrors  int
	UpdatedAt          time.Time
}

// NewState creates fresh rate-gate state for a (user, platform) pair.
func NewState(userID uuid.UUID, code platform.Code) (*State, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if !code.IsValid() {
		return nil, ErrInvalidPlatform
	}
	now := time.Now()
	return &State{
		ID:        uuid.New(),
		UserID:    userID,
		Platform:  code,
		UpdatedAt: now,
	}, nil
}

// rollWindows resets the rolling counters based on wall-clock time elapsed
// since the last recorded request. This is a rolling-window approximation,
// not bucket-aligned accounting.
func (s *State) rollWindows(now time.Time) {
	if s.LastRequestTime.IsZero() {
		return
	}
	elapsed := now.Sub(s.LastRequestTime)
	if elapsed >= time.Minute {
		s.RequestsThisMinute = 0
	}
	if elapsed >= time.Hour {
		s.RequestsThisHour = 0
	}
}

// Check decides whether a request may proceed at the given instant.
// It does not mutate counters; only RecordSuccess/RecordFailure do.
func (s *State) Check(now time.Time, limits Limits) Decision {
	if s.ThrottleUntil != nil && s.ThrottleUntil.After(now) {
		return Decision{
			Allowed: false,
			Wait:    s.ThrottleUntil.Sub(now),
			Reason:  "throttled after rate-limit responses",
		}
	}

	s.rollWindows(now)

	if s.RequestsThisMinute >= limits.MaxRequestsPerMinute {
		wait := time.Minute - now.Sub(s.LastRequestTime)
		if wait < 0 {
			wait = 0
		}
		return Decision{Allowed: false, Wait: wait, Reason: "per-minute quota reached"}
	}
	if s.RequestsThisHour >= limits.MaxRequestsPerHour {
		wait := time.Hour - now.Sub(s.LastRequestTime)
		if wait < 0 {
			wait = 0
		}
		return Decision{Allowed: false, Wait: wait, Reason: "per-hour quota reached"}
	}
	return Decision{Allowed: true}
}

// RecordSuccess counts a completed request and clears any error streak.
func (s *State) RecordSuccess(now time.Time) {
	s.rollWindows(now)
	s.RequestsThisMinute++
	s.RequestsThisHour++
	s.LastRequestTime = now
	s.ConsecutiveErrors = 0
	s.Throttled = false
	s.ThrottleUntil = nil
	s.UpdatedAt = now
}

// RecordFailure registers a rate-limit classified failure. The throttle
// window honors a server-provided Retry-After when present, otherwise grows
// exponentially with the error streak. ThrottleUntil never moves backwards.
func (s *State) RecordFailure(now time.Time, limits Limits, serverRetryAfter time.Duration) FailureDecision {
	s.ConsecutiveErrors++
	s.LastRequestTime = now
	s.UpdatedAt = now
	s.Throttled = true

	wait := serverRetryAfter
	if wait <= 0 {
		backoff := float64(limits.BaseBackoff) * math.Pow(limits.BackoffMultiplier, float64(s.ConsecutiveErrors))
		wait = time.Duration(backoff)
		if wait > limits.MaxBackoff {
			wait = limits.MaxBackoff
		}
	}

	until := now.Add(wait)
	if s.ThrottleUntil == nil || until.After(*s.ThrottleUntil) {
		s.ThrottleUntil = &until
	}

	return FailureDecision{
		Wait:        s.ThrottleUntil.Sub(now),
		ShouldRetry: s.ConsecutiveErrors < MaxConsecutiveFailures,
	}
}

// ShouldAlert reports whether the current error streak warrants an alert.
func (s *State) ShouldAlert() bool {
	return s.ConsecutiveErrors > AlertThreshold
}

// Repository persists rate-gate state. The persisted copy is authoritative;
// any in-process cache is a short-TTL read cache only.
type Repository interface {
	// Find returns the state for a (user, platform) pair
	Find(ctx context.Context, userID uuid.UUID, code platform.Code) (*State, error)
	// Upsert atomically creates or updates state keyed by (user, platform)
	Upsert(ctx context.Context, state *State) error
	// ListThrottled returns all currently throttled states
	ListThrottled(ctx context.Context, now time.Time) ([]State, error)
}
