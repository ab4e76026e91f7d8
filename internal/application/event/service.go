package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/event"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Service exposes event publishing and dead-letter management to the HTTP
// layer.
type Service struct {
	dispatcher *Dispatcher
	events     event.Repository
	records    event.ProcessingRecordRepository
	logger     *zap.Logger
}

// NewService creates an event service.
func NewService(
	dispatcher *Dispatcher,
	events event.Repository,
	records event.ProcessingRecordRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		dispatcher: dispatcher,
		events:     events,
		records:    records,
		logger:     logger,
	}
}

// PublishCommand carries a caller-provided event.
type PublishCommand struct {
	Type           string         `json:"type" binding:"required"`
	Source         string         `json:"source" binding:"required"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Payload        map[string]any `json:"payload"`
	Priority       string         `json:"priority"`
	MaxRetries     *int           `json:"max_retries,omitempty"`
	BusinessImpact string         `json:"business_impact"`
	Tags           []string       `json:"tags"`
	CorrelationID  *uuid.UUID     `json:"correlation_id,omitempty"`
	CausationID    *uuid.UUID     `json:"causation_id,omitempty"`
}

// EventDTO represents a sync event data transfer object.
type EventDTO struct {
	ID             uuid.UUID      `json:"id"`
	Type           string         `json:"type"`
	Source         string         `json:"source"`
	EntityType     string         `json:"entity_type,omitempty"`
	EntityID       string         `json:"entity_id,omitempty"`
	UserID         uuid.UUID      `json:"user_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	Priority       string         `json:"priority"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	BusinessImpact string         `json:"business_impact,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time     `json:"next_attempt_at,omitempty"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EventFilter represents pagination for event listings.
type EventFilter struct {
	Page     int `form:"page,omitempty" binding:"omitempty,min=1"`
	PageSize int `form:"page_size,omitempty" binding:"omitempty,min=1,max=100"`
}

// EventListResult represents a paginated event list.
type EventListResult struct {
	Events     []EventDTO `json:"events"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

// StatsDTO represents per-status event counts.
type StatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Processed  int64 `json:"processed"`
	Deferred   int64 `json:"deferred"`
	Escalated  int64 `json:"escalated"`
	Total      int64 `json:"total"`
}

// ProcessingRecordDTO represents one handler attempt.
type ProcessingRecordDTO struct {
	ID          uuid.UUID `json:"id"`
	HandlerName string    `json:"handler_name"`
	Attempt     int       `json:"attempt"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Publish validates and publishes a caller-provided event.
func (s *Service) Publish(ctx context.Context, userID uuid.UUID, cmd PublishCommand) (*EventDTO, error) {
	e, err := event.New(event.Type(cmd.Type), event.Source(cmd.Source), cmd.EntityType, cmd.EntityID, userID, cmd.Payload)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_EVENT", err.Error())
	}

	if cmd.Priority != "" {
		p := event.Priority(cmd.Priority)
		if !p.IsValid() {
			return nil, shared.NewDomainError("INVALID_EVENT", "invalid priority")
		}
		e.Priority = p
	}
	if cmd.MaxRetries != nil && *cmd.MaxRetries > 0 {
		e.MaxRetries = *cmd.MaxRetries
	}
	e.BusinessImpact = cmd.BusinessImpact
	e.Tags = cmd.Tags
	e.CorrelationID = cmd.CorrelationID
	e.CausationID = cmd.CausationID

	if err := s.dispatcher.Publish(ctx, e); err != nil {
		s.logger.Error("failed to publish event", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to publish event")
	}

	dto := toEventDTO(e)
	return &dto, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*EventDTO, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("EVENT_NOT_FOUND", "Event not found")
	}
	dto := toEventDTO(e)
	return &dto, nil
}

// GetEventHistory returns the attempt history for one event.
func (s *Service) GetEventHistory(ctx context.Context, id uuid.UUID) ([]ProcessingRecordDTO, error) {
	records, err := s.records.ListByEvent(ctx, id)
	if err != nil {
		s.logger.Error("failed to list processing records", zap.Error(err), zap.String("event_id", id.String()))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve event history")
	}
	dtos := make([]ProcessingRecordDTO, len(records))
	for i, r := range records {
		dtos[i] = ProcessingRecordDTO{
			ID:          r.ID,
			HandlerName: r.HandlerName,
			Attempt:     r.Attempt,
			Outcome:     string(r.Outcome),
			Error:       r.Error,
			StartedAt:   r.StartedAt,
			DurationMS:  r.Duration.Milliseconds(),
		}
	}
	return dtos, nil
}

// GetDeadLetterEvents retrieves escalated events with pagination.
func (s *Service) GetDeadLetterEvents(ctx context.Context, filter EventFilter) (*EventListResult, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	events, total, err := s.events.ListEscalated(ctx, page, pageSize)
	if err != nil {
		s.logger.Error("failed to list escalated events", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to retrieve escalated events")
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	dtos := make([]EventDTO, len(events))
	for i := range events {
		dtos[i] = toEventDTO(&events[i])
	}
	return &EventListResult{
		Events:     dtos,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// RequeueDead resets an escalated event for a fresh round of retries.
func (s *Service) RequeueDead(ctx context.Context, id uuid.UUID) (*EventDTO, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, shared.NewDomainError("EVENT_NOT_FOUND", "Event not found")
	}

	if err := e.ResetForRetry(); err != nil {
		return nil, shared.NewDomainError("INVALID_STATUS", err.Error())
	}
	if err := s.events.Update(ctx, e); err != nil {
		s.logger.Error("failed to requeue event", zap.Error(err), zap.String("event_id", id.String()))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to requeue event")
	}

	s.logger.Info("escalated event requeued",
		zap.String("event_id", id.String()),
		zap.String("type", string(e.Type)),
	)
	dto := toEventDTO(e)
	return &dto, nil
}

// GetStats returns per-status event counts.
func (s *Service) GetStats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.events.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("failed to count events", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to get event stats")
	}

	var total int64
	for _, count := range counts {
		total += count
	}
	return &StatsDTO{
		Pending:    counts[event.StatusPending],
		Processing: counts[event.StatusProcessing],
		Processed:  counts[event.StatusProcessed],
		Deferred:   counts[event.StatusDeferred],
		Escalated:  counts[event.StatusEscalated],
		Total:      total,
	}, nil
}

func toEventDTO(e *event.SyncEvent) EventDTO {
	return EventDTO{
		ID:             e.ID,
		Type:           string(e.Type),
		Source:         string(e.Source),
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		UserID:         e.UserID,
		Payload:        e.Payload,
		Priority:       string(e.Priority),
		Status:         string(e.Status),
		RetryCount:     e.RetryCount,
		MaxRetries:     e.MaxRetries,
		BusinessImpact: e.BusinessImpact,
		Tags:           e.Tags,
		LastError:      e.LastError,
		NextAttemptAt:  e.NextAttemptAt,
		ProcessedAt:    e.ProcessedAt,
		CreatedAt:      e.CreatedAt,
	}
}
