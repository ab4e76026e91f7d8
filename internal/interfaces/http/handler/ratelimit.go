package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
)

// LimitsConfig reads and overrides per-platform quotas.
type LimitsConfig interface {
	LimitsFor(code platform.Code) ratelimit.Limits
	SetOverride(code platform.Code, limits ratelimit.Limits)
}

// GateStatus reads the caller's current rate-gate state.
type GateStatus interface {
	Status(ctx context.Context, userID uuid.UUID, code platform.Code) (*ratelimit.State, error)
}

// RateLimitHandler handles rate limit configuration HTTP requests
type RateLimitHandler struct {
	BaseHandler
	limits LimitsConfig
	gate   GateStatus
}

// NewRateLimitHandler creates a new rate limit handler
func NewRateLimitHandler(limits LimitsConfig, gate GateStatus) *RateLimitHandler {
	return &RateLimitHandler{
		limits: limits,
		gate:   gate,
	}
}

// LimitsResponse is the serialized view of a platform quota.
type LimitsResponse struct {
	MaxRequestsPerMinute int     `json:"max_requests_per_minute"`
	MaxRequestsPerHour   int     `json:"max_requests_per_hour"`
	BurstLimit           int     `json:"burst_limit"`
	BaseBackoffMS        int64   `json:"base_backoff_ms"`
	BackoffMultiplier    float64 `json:"backoff_multiplier"`
	MaxBackoffMS         int64   `json:"max_backoff_ms"`
}

func toLimitsResponse(l ratelimit.Limits) LimitsResponse {
	return LimitsResponse{
		MaxRequestsPerMinute: l.MaxRequestsPerMinute,
		MaxRequestsPerHour:   l.MaxRequestsPerHour,
		BurstLimit:           l.BurstLimit,
		BaseBackoffMS:        l.BaseBackoff.Milliseconds(),
		BackoffMultiplier:    l.BackoffMultiplier,
		MaxBackoffMS:         l.MaxBackoff.Milliseconds(),
	}
}

// GateStateResponse is the caller's live gate state for one platform.
type GateStateResponse struct {
	RequestsThisMinute int        `json:"requests_this_minute"`
	RequestsThisHour   int        `json:"requests_this_hour"`
	Throttled          bool       `json:"throttled"`
	ThrottleUntil      *time.Time `json:"throttle_until,omitempty"`
	ConsecutiveErrors  int        `json:"consecutive_errors"`
}

// RateLimitStatusResponse combines the configured quota with live state.
type RateLimitStatusResponse struct {
	Platform string             `json:"platform"`
	Limits   LimitsResponse     `json:"limits"`
	State    *GateStateResponse `json:"state,omitempty"`
}

// UpdateLimitsRequest overrides a platform quota at runtime.
type UpdateLimitsRequest struct {
	MaxRequestsPerMinute int     `json:"max_requests_per_minute" binding:"required,min=1"`
	MaxRequestsPerHour   int     `json:"max_requests_per_hour" binding:"required,min=1"`
	BurstLimit           int     `json:"burst_limit" binding:"omitempty,min=1"`
	BaseBackoffMS        int64   `json:"base_backoff_ms" binding:"omitempty,min=1"`
	BackoffMultiplier    float64 `json:"backoff_multiplier" binding:"omitempty,gt=1"`
	MaxBackoffMS         int64   `json:"max_backoff_ms" binding:"omitempty,min=1"`
}

func parsePlatform(c *gin.Context) (platform.Code, bool) {
	code := platform.Code(c.Param("platform"))
	return code, code.IsValid()
}

// Get returns the configured quota and the caller's live gate state for
// one platform.
func (h *RateLimitHandler) Get(c *gin.Context) {
	code, ok := parsePlatform(c)
	if !ok {
		h.BadRequest(c, "Unknown platform")
		return
	}

	resp := RateLimitStatusResponse{
		Platform: string(code),
		Limits:   toLimitsResponse(h.limits.LimitsFor(code)),
	}

	if userID, err := getUserID(c); err == nil {
		state, err := h.gate.Status(c.Request.Context(), userID, code)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		resp.State = &GateStateResponse{
			RequestsThisMinute: state.RequestsThisMinute,
			RequestsThisHour:   state.RequestsThisHour,
			Throttled:          state.Throttled,
			ThrottleUntil:      state.ThrottleUntil,
			ConsecutiveErrors:  state.ConsecutiveErrors,
		}
	}

	h.Success(c, resp)
}

// Put overrides a platform quota. Zero-valued backoff fields keep the
// current values.
func (h *RateLimitHandler) Put(c *gin.Context) {
	code, ok := parsePlatform(c)
	if !ok {
		h.BadRequest(c, "Unknown platform")
		return
	}

	var req UpdateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	limits := h.limits.LimitsFor(code)
	limits.MaxRequestsPerMinute = req.MaxRequestsPerMinute
	limits.MaxRequestsPerHour = req.MaxRequestsPerHour
	if req.BurstLimit > 0 {
		limits.BurstLimit = req.BurstLimit
	}
	if req.BaseBackoffMS > 0 {
		limits.BaseBackoff = time.Duration(req.BaseBackoffMS) * time.Millisecond
	}
	if req.BackoffMultiplier > 1 {
		limits.BackoffMultiplier = req.BackoffMultiplier
	}
	if req.MaxBackoffMS > 0 {
		limits.MaxBackoff = time.Duration(req.MaxBackoffMS) * time.Millisecond
	}

	h.limits.SetOverride(code, limits)

	h.Success(c, RateLimitStatusResponse{
		Platform: string(code),
		Limits:   toLimitsResponse(limits),
	})
}

// RegisterRoutes mounts the rate limit endpoints.
func (h *RateLimitHandler) RegisterRoutes(rg *gin.RouterGroup) {
	limits := rg.Group("/rate-limits")
	{
		limits.GET("/:platform", h.Get)
		limits.PUT("/:platform", h.Put)
	}
}
