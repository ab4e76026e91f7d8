package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound      = errors.New("event: not found")
	ErrInvalidType        = errors.New("event: invalid event type")
	ErrInvalidSource      = errors.New("event: invalid event source")
	ErrInvalidUserID      = errors.New("event: invalid user ID")
	ErrInvalidTransition  = errors.New("event: invalid state transition")
	ErrNotEscalated       = errors.New("event: only escalated events can be requeued")
	ErrRetriesExhausted   = errors.New("event: retry budget exhausted")
	ErrHandlerTimeout     = errors.New("event: handler timed out")
	ErrNoMatchingHandlers = errors.New("event: no matching subscriptions")
)

// Type enumerates the sync event vocabulary.
type Type string

const (
	TypeEntityCreated       Type = "entity_created"
	TypeEntityUpdated       Type = "entity_updated"
	TypeEntityDeleted       Type = "entity_deleted"
	TypeSyncRequested       Type = "sync_requested"
	TypeSyncCompleted       Type = "sync_completed"
	TypeSyncFailed          Type = "sync_failed"
	TypeWebhookReceived     Type = "webhook_received"
	TypeAPIRateLimited      Type = "api_rate_limited"
	TypeSystemHealthChanged Type = "system_health_changed"
	TypeUserActionPerformed Type = "user_action_performed"
)

// IsValid returns true if the event type is valid
func (t Type) IsValid() bool {
	switch t {
	case TypeEntityCreated, TypeEntityUpdated, TypeEntityDeleted,
		TypeSyncRequested, TypeSyncCompleted, TypeSyncFailed,
		TypeWebhookReceived, TypeAPIRateLimited,
		TypeSystemHealthChanged, TypeUserActionPerformed:
		return true
	default:
		return false
	}
}

// Source identifies who produced an event.
type Source string

const (
	SourcePlatform Source = "platform"
	SourceSystem   Source = "system"
	SourceUser     Source = "user"
)

// IsValid returns true if the source is valid
func (s Source) IsValid() bool {
	switch s {
	case SourcePlatform, SourceSystem, SourceUser:
		return true
	default:
		return false
	}
}

// Priority orders dispatch. Critical events are dispatched synchronously at
// publish time; everything else waits for the dispatcher tick.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric ordering of a priority, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// IsValid returns true if the priority is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Status is the dispatch lifecycle state of an event.
// PENDING -> PROCESSING -> {PROCESSED | DEFERRED | ESCALATED};
// DEFERRED returns to PROCESSING after its backoff delay elapses.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusDeferred   Status = "DEFERRED"
	StatusEscalated  Status = "ESCALATED"
)

// DefaultMaxRetries is the retry budget when the producer sets none.
const DefaultMaxRetries = 5

// SyncEvent is one immutable logical change flowing through the engine.
// The row itself is append-once; only the dispatch bookkeeping fields
// (status, retry count, attempt history) mutate as handlers attempt it.
type SyncEvent struct {
	ID            uuid.UUID
	Type          Type
	Source        Source
	EntityType    string
	EntityID      string
	UserID        uuid.UUID
	Payload       map[string]any
	CorrelationID *uuid.UUID
	CausationID   *uuid.UUID
	Version       int

	// Metadata
	Priority       Priority
	RetryCount     int
	MaxRetries     int
	BusinessImpact string
	Tags           []string

	// Dispatch bookkeeping
	Status        Status
	NextAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

// New creates a pending sync event.
func New(typ Type, source Source, entityType, entityID string, userID uuid.UUID, payload map[string]any) (*SyncEvent, error) {
	if !typ.IsValid() {
		return nil, ErrInvalidType
	}
	if !source.IsValid() {
		return nil, ErrInvalidSource
	}
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	now := time.Now()
	return &SyncEvent{
		ID:         uuid.New(),
		Type:       typ,
		Source:     source,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Payload:    payload,
		Version:    1,
		Priority:   PriorityNormal,
		MaxRetries: DefaultMaxRetries,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// MarkProcessing claims the event for a dispatch attempt.
func (e *SyncEvent) MarkProcessing() error {
	if e.Status != StatusPending && e.Status != StatusDeferred {
		return ErrInvalidTransition
	}
	e.Status = StatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// MarkProcessed records terminal success.
func (e *SyncEvent) MarkProcessed() {
	now := time.Now()
	e.Status = StatusProcessed
	e.LastError = ""
	e.NextAttemptAt = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// Defer schedules a retry after the given delay, or escalates once the
// retry budget is spent. Escalation is terminal and never silent: the
// dispatcher logs and alerts on it.
func (e *SyncEvent) Defer(delay time.Duration, errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()

	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusEscalated
		e.NextAttemptAt = nil
		return
	}
	next := time.Now().Add(delay)
	e.Status = StatusDeferred
	e.NextAttemptAt = &next
}

// IsEscalated reports whether the event is in the dead-letter state.
func (e *SyncEvent) IsEscalated() bool {
	return e.Status == StatusEscalated
}

// IsTerminal reports whether the event will never be dispatched again.
func (e *SyncEvent) IsTerminal() bool {
	return e.Status == StatusProcessed || e.Status == StatusEscalated
}

// ResetForRetry requeues an escalated event with a fresh retry budget.
// Requires explicit operator action; nothing requeues automatically.
func (e *SyncEvent) ResetForRetry() error {
	if e.Status != StatusEscalated {
		return ErrNotEscalated
	}
	e.Status = StatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextAttemptAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// Field resolves a dotted path into the event's typed view. Top-level
// segments are the event's own fields; the payload subtree is reached via
// "payload.<key>...". Returns false when the path does not resolve.
func (e *SyncEvent) Field(path string) (any, bool) {
	segments := strings.Split(path, ".")
	switch segments[0] {
	case "type":
		return string(e.Type), true
	case "source":
		return string(e.Source), true
	case "entity_type", "entityType":
		return e.EntityType, true
	case "entity_id", "entityId":
		return e.EntityID, true
	case "user_id", "userId":
		return e.UserID.String(), true
	case "priority":
		return string(e.Priority), true
	case "business_impact", "businessImpact":
		return e.BusinessImpact, true
	case "tags":
		return e.Tags, true
	case "payload":
		if len(segments) == 1 {
			return e.Payload, true
		}
		return descend(e.Payload, segments[1:])
	default:
		return nil, false
	}
}

func descend(m map[string]any, segments []string) (any, bool) {
	var current any = m
	for _, seg := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ProcessingOutcome is the result of one handler invocation.
type ProcessingOutcome string

const (
	OutcomeSuccess ProcessingOutcome = "SUCCESS"
	OutcomeFailure ProcessingOutcome = "FAILURE"
	OutcomeTimeout ProcessingOutcome = "TIMEOUT"
)

// ProcessingRecord is one row of an event's attempt history. The history
// grows monotonically; records are never rewritten.
type ProcessingRecord struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	SubscriptionID uuid.UUID
	HandlerName    string
	Attempt        int
	Outcome        ProcessingOutcome
	Error          string
	StartedAt      time.Time
	Duration       time.Duration
}

// NewProcessingRecord records one handler invocation.
func NewProcessingRecord(eventID, subscriptionID uuid.UUID, handlerName string, attempt int, outcome ProcessingOutcome, errMsg string, startedAt time.Time, duration time.Duration) *ProcessingRecord {
	return &ProcessingRecord{
		ID:             uuid.New(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		HandlerName:    handlerName,
		Attempt:        attempt,
		Outcome:        outcome,
		Error:          errMsg,
		StartedAt:      startedAt,
		Duration:       duration,
	}
}

// Repository is the durable append-only event log plus dispatch queue.
type Repository interface {
	// Append durably stores a newly published event
	Append(ctx context.Context, e *SyncEvent) error
	// Update persists dispatch bookkeeping changes
	Update(ctx context.Context, e *SyncEvent) error
	// FindByID finds an event by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncEvent, error)
	// NextDue returns the single highest-priority event that is pending, or
	// deferred with an elapsed backoff, at the given instant. Ties break by
	// insertion order. Returns ErrEventNotFound when the queue is empty.
	NextDue(ctx context.Context, now time.Time) (*SyncEvent, error)
	// ListEscalated returns dead-letter events with pagination
	ListEscalated(ctx context.Context, page, pageSize int) ([]SyncEvent, int64, error)
	// CountByStatus returns event counts per status
	CountByStatus(ctx context.Context) (map[Status]int64, error)
	// DeleteProcessedBefore removes processed events older than the cutoff
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProcessingRecordRepository persists attempt history.
type ProcessingRecordRepository interface {
	Save(ctx context.Context, r *ProcessingRecord) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]ProcessingRecord, error)
}
