package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
)

// RateLimitStateModel is the persistence model for per-user per-platform
// rate gate state. One row per (user, platform) enforced by a unique index
// so concurrent gates converge on the same counters.
type RateLimitStateModel struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primary_key"`
	UserID             uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_rate_limit_user_platform,priority:1"`
	Platform           platform.Code `gorm:"type:varchar(20);not null;uniqueIndex:idx_rate_limit_user_platform,priority:2"`
	RequestsThisMinute int           `gorm:"not null;default:0"`
	RequestsThisHour   int           `gorm:"not null;default:0"`
	LastRequestTime    time.Time
	Throttled          bool       `gorm:"not null;default:false;index"`
	ThrottleUntil      *time.Time `gorm:"index"`
	ConsecutiveErrors  int        `gorm:"not null;default:0"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RateLimitStateModel) TableName() string {
	return "rate_limit_states"
}

// ToDomain converts the persistence model to a domain State entity.
func (m *RateLimitStateModel) ToDomain() *ratelimit.State {
	return &ratelimit.State{
		ID:                 m.ID,
		UserID:             m.UserID,
		Platform:           m.Platform,
		RequestsThisMinute: m.RequestsThisMinute,
		RequestsThisHour:   m.RequestsThisHour,
		LastRequestTime:    m.LastRequestTime,
		Throttled:          m.Throttled,
		ThrottleUntil:      m.ThrottleUntil,
		ConsecutiveErrors:  m.ConsecutiveErrors,
		UpdatedAt:          m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain State.
func (m *RateLimitStateModel) FromDomain(s *ratelimit.State) {
	m.ID = s.ID
	m.UserID = s.UserID
	m.Platform = s.Platform
	m.RequestsThisMinute = s.RequestsThisMinute
	m.RequestsThisHour = s.RequestsThisHour
	m.LastRequestTime = s.LastRequestTime
	m.Throttled = s.Throttled
	m.ThrottleUntil = s.ThrottleUntil
	m.ConsecutiveErrors = s.ConsecutiveErrors
	m.UpdatedAt = s.UpdatedAt
}

// RateLimitStateModelFromDomain creates a persistence model from a domain
// State.
func RateLimitStateModelFromDomain(s *ratelimit.State) *RateLimitStateModel {
	m := &RateLimitStateModel{}
	m.FromDomain(s)
	return m
}
