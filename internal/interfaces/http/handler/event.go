package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appevent "github.com/syncbridge/backend/internal/application/event"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// IdempotencyKeyHeader deduplicates event publishes across retried requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// EventService is the application surface the event handler drives.
type EventService interface {
	Publish(ctx context.Context, userID uuid.UUID, cmd appevent.PublishCommand) (*appevent.EventDTO, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*appevent.EventDTO, error)
	GetEventHistory(ctx context.Context, id uuid.UUID) ([]appevent.ProcessingRecordDTO, error)
	GetDeadLetterEvents(ctx context.Context, filter appevent.EventFilter) (*appevent.EventListResult, error)
	RequeueDead(ctx context.Context, id uuid.UUID) (*appevent.EventDTO, error)
	GetStats(ctx context.Context) (*appevent.StatsDTO, error)
}

// EventHandler handles event queue HTTP requests
type EventHandler struct {
	BaseHandler
	events      EventService
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
}

// NewEventHandler creates a new event handler
func NewEventHandler(events EventService, idempotency shared.IdempotencyStore) *EventHandler {
	return &EventHandler{
		events:      events,
		idempotency: idempotency,
		idemConfig:  shared.DefaultIdempotencyConfig(),
	}
}

// PublishResponse wraps a published event with its dedup outcome.
type PublishResponse struct {
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	Duplicate bool       `json:"duplicate"`
}

// Publish accepts a caller-provided event onto the queue. A repeated
// Idempotency-Key within the dedup window returns duplicate without a
// second enqueue.
func (h *EventHandler) Publish(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Invalid or missing user ID")
		return
	}

	var cmd appevent.PublishCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.BadRequest(c, "Invalid request body")
		return
	}

	if key := c.GetHeader(IdempotencyKeyHeader); key != "" && h.idempotency != nil && h.idemConfig.Enabled {
		newlyMarked, err := h.idempotency.MarkProcessed(c.Request.Context(), userID.String()+":"+key, h.idemConfig.TTL)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if !newlyMarked {
			h.Success(c, PublishResponse{Duplicate: true})
			return
		}
	}

	evt, err := h.events.Publish(c.Request.Context(), userID, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, PublishResponse{EventID: &evt.ID})
}

// GetEvent returns one event by ID.
func (h *EventHandler) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	evt, err := h.events.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, evt)
}

// GetEventHistory returns the per-attempt processing records for an event.
func (h *EventHandler) GetEventHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	records, err := h.events.GetEventHistory(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, records)
}

// GetDeadLetterEvents lists escalated events for operator inspection.
func (h *EventHandler) GetDeadLetterEvents(c *gin.Context) {
	var filter appevent.EventFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}

	result, err := h.events.GetDeadLetterEvents(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Events, result.Total, result.Page, result.PageSize)
}

// RequeueDead resets an escalated event for another round of retries.
func (h *EventHandler) RequeueDead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid event ID")
		return
	}

	evt, err := h.events.RequeueDead(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, evt)
}

// GetStats returns per-status event counts.
func (h *EventHandler) GetStats(c *gin.Context) {
	stats, err := h.events.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

// RegisterRoutes mounts the event endpoints.
func (h *EventHandler) RegisterRoutes(rg *gin.RouterGroup) {
	events := rg.Group("/events")
	{
		events.POST("", h.Publish)
		events.GET("/stats", h.GetStats)
		events.GET("/dead", h.GetDeadLetterEvents)
		events.POST("/dead/:id/requeue", h.RequeueDead)
		events.GET("/:id", h.GetEvent)
		events.GET("/:id/history", h.GetEventHistory)
	}
}
