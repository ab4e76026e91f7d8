package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/event"
)

// SyncEventModel is the persistence model for the SyncEvent domain entity.
// PriorityRank is denormalized so the dispatch queue can order with a plain
// index scan instead of a CASE expression.
type SyncEventModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key"`
	Type           event.Type     `gorm:"type:varchar(50);not null;index"`
	Source         event.Source   `gorm:"type:varchar(20);not null"`
	EntityType     string         `gorm:"type:varchar(50);not null;index"`
	EntityID       string         `gorm:"type:varchar(100);not null;index"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index"`
	PayloadJSON    string         `gorm:"type:jsonb;column:payload"`
	CorrelationID  *uuid.UUID     `gorm:"type:uuid;index"`
	CausationID    *uuid.UUID     `gorm:"type:uuid"`
	Version        int            `gorm:"not null;default:1"`
	Priority       event.Priority `gorm:"type:varchar(10);not null;default:'normal'"`
	PriorityRank   int            `gorm:"not null;default:1;index:idx_sync_events_queue,priority:2"`
	RetryCount     int            `gorm:"not null;default:0"`
	MaxRetries     int            `gorm:"not null;default:5"`
	BusinessImpact string         `gorm:"type:text"`
	TagsJSON       string         `gorm:"type:jsonb;column:tags"`
	Status         event.Status   `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_sync_events_queue,priority:1"`
	NextAttemptAt  *time.Time     `gorm:"index"`
	LastError      string         `gorm:"type:text"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_sync_events_queue,priority:3"`
	UpdatedAt      time.Time      `gorm:"not null"`
	ProcessedAt    *time.Time     `gorm:"index"`
}

// TableName returns the table name for GORM
func (SyncEventModel) TableName() string {
	return "sync_events"
}

// ToDomain converts the persistence model to a domain SyncEvent entity.
func (m *SyncEventModel) ToDomain() *event.SyncEvent {
	e := &event.SyncEvent{
		ID:             m.ID,
		Type:           m.Type,
		Source:         m.Source,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		UserID:         m.UserID,
		CorrelationID:  m.CorrelationID,
		CausationID:    m.CausationID,
		Version:        m.Version,
		Priority:       m.Priority,
		RetryCount:     m.RetryCount,
		MaxRetries:     m.MaxRetries,
		BusinessImpact: m.BusinessImpact,
		Status:         m.Status,
		NextAttemptAt:  m.NextAttemptAt,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ProcessedAt:    m.ProcessedAt,
	}
	if m.PayloadJSON != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err == nil {
			e.Payload = payload
		}
	}
	if m.TagsJSON != "" {
		var tags []string
		if err := json.Unmarshal([]byte(m.TagsJSON), &tags); err == nil {
			e.Tags = tags
		}
	}
	return e
}

// FromDomain populates the persistence model from a domain SyncEvent.
func (m *SyncEventModel) FromDomain(e *event.SyncEvent) {
	m.ID = e.ID
	m.Type = e.Type
	m.Source = e.Source
	m.EntityType = e.EntityType
	m.EntityID = e.EntityID
	m.UserID = e.UserID
	m.CorrelationID = e.CorrelationID
	m.CausationID = e.CausationID
	m.Version = e.Version
	m.Priority = e.Priority
	m.PriorityRank = e.Priority.Rank()
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.BusinessImpact = e.BusinessImpact
	m.Status = e.Status
	m.NextAttemptAt = e.NextAttemptAt
	m.LastError = e.LastError
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
	m.ProcessedAt = e.ProcessedAt

	if len(e.Payload) > 0 {
		if data, err := json.Marshal(e.Payload); err == nil {
			m.PayloadJSON = string(data)
		}
	} else {
		m.PayloadJSON = "{}"
	}
	if len(e.Tags) > 0 {
		if data, err := json.Marshal(e.Tags); err == nil {
			m.TagsJSON = string(data)
		}
	} else {
		m.TagsJSON = "[]"
	}
}

// SyncEventModelFromDomain creates a persistence model from a domain
// SyncEvent.
func SyncEventModelFromDomain(e *event.SyncEvent) *SyncEventModel {
	m := &SyncEventModel{}
	m.FromDomain(e)
	return m
}

// ProcessingRecordModel is the persistence model for handler attempt
// history.
type ProcessingRecordModel struct {
	ID             uuid.UUID               `gorm:"type:uuid;primary_key"`
	EventID        uuid.UUID               `gorm:"type:uuid;not null;index"`
	SubscriptionID uuid.UUID               `gorm:"type:uuid;not null;index"`
	HandlerName    string                  `gorm:"type:varchar(100);not null"`
	Attempt        int                     `gorm:"not null"`
	Outcome        event.ProcessingOutcome `gorm:"type:varchar(20);not null"`
	Error          string                  `gorm:"type:text"`
	StartedAt      time.Time               `gorm:"not null;index"`
	DurationMillis int64                   `gorm:"not null;column:duration_ms"`
}

// TableName returns the table name for GORM
func (ProcessingRecordModel) TableName() string {
	return "event_processing_history"
}

// ToDomain converts the persistence model to a domain ProcessingRecord.
func (m *ProcessingRecordModel) ToDomain() *event.ProcessingRecord {
	return &event.ProcessingRecord{
		ID:             m.ID,
		EventID:        m.EventID,
		SubscriptionID: m.SubscriptionID,
		HandlerName:    m.HandlerName,
		Attempt:        m.Attempt,
		Outcome:        m.Outcome,
		Error:          m.Error,
		StartedAt:      m.StartedAt,
		Duration:       time.Duration(m.DurationMillis) * time.Millisecond,
	}
}

// FromDomain populates the persistence model from a domain ProcessingRecord.
func (m *ProcessingRecordModel) FromDomain(r *event.ProcessingRecord) {
	m.ID = r.ID
	m.EventID = r.EventID
	m.SubscriptionID = r.SubscriptionID
	m.HandlerName = r.HandlerName
	m.Attempt = r.Attempt
	m.Outcome = r.Outcome
	m.Error = r.Error
	m.StartedAt = r.StartedAt
	m.DurationMillis = r.Duration.Milliseconds()
}

// SubscriptionModel is the persistence model for dynamic event
// subscriptions. The handler itself is code; only its registered name is
// stored and re-attached at boot.
type SubscriptionModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Name            string    `gorm:"type:varchar(100);not null"`
	HandlerName     string    `gorm:"type:varchar(100);not null;index"`
	EventTypesJSON  string    `gorm:"type:jsonb;column:event_types"`
	EntityTypesJSON string    `gorm:"type:jsonb;column:entity_types"`
	SourcesJSON     string    `gorm:"type:jsonb;column:sources"`
	FilterJSON      string    `gorm:"type:jsonb;column:filter"`
	Priority        int       `gorm:"not null;default:0"`
	Enabled         bool      `gorm:"not null;default:true;index"`
	TimeoutMillis   int64     `gorm:"not null;column:timeout_ms"`
	BackoffJSON     string    `gorm:"type:jsonb;column:backoff"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "event_subscriptions"
}

// subscriptionFilterJSON is the serialized form of an event filter.
type subscriptionFilterJSON struct {
	Mode       event.FilterMode `json:"mode"`
	Conditions []conditionJSON  `json:"conditions,omitempty"`
}

type conditionJSON struct {
	Path   string         `json:"path"`
	Op     event.Operator `json:"op"`
	Value  any            `json:"value,omitempty"`
	Values []any          `json:"values,omitempty"`
}

type backoffJSON struct {
	Kind      event.BackoffKind `json:"kind"`
	BaseDelay time.Duration     `json:"base_delay"`
	MaxDelay  time.Duration     `json:"max_delay"`
	Jitter    bool              `json:"jitter"`
}

// ToDomain converts the persistence model to a StoredSubscription. The
// Handler field is left nil; callers re-attach it by HandlerName.
func (m *SubscriptionModel) ToDomain() *event.StoredSubscription {
	s := &event.StoredSubscription{
		Subscription: event.Subscription{
			ID:       m.ID,
			Name:     m.Name,
			Priority: m.Priority,
			Enabled:  m.Enabled,
			Timeout:  time.Duration(m.TimeoutMillis) * time.Millisecond,
		},
		HandlerName: m.HandlerName,
	}
	if m.EventTypesJSON != "" {
		_ = json.Unmarshal([]byte(m.EventTypesJSON), &s.EventTypes)
	}
	if m.EntityTypesJSON != "" {
		_ = json.Unmarshal([]byte(m.EntityTypesJSON), &s.EntityTypes)
	}
	if m.SourcesJSON != "" {
		_ = json.Unmarshal([]byte(m.SourcesJSON), &s.Sources)
	}
	if m.FilterJSON != "" {
		var f subscriptionFilterJSON
		if err := json.Unmarshal([]byte(m.FilterJSON), &f); err == nil {
			s.Filter.Mode = f.Mode
			for _, c := range f.Conditions {
				s.Filter.Conditions = append(s.Filter.Conditions, event.Condition{
					Path:   c.Path,
					Op:     c.Op,
					Value:  c.Value,
					Values: c.Values,
				})
			}
		}
	}
	if m.BackoffJSON != "" {
		var b backoffJSON
		if err := json.Unmarshal([]byte(m.BackoffJSON), &b); err == nil {
			s.Backoff = event.BackoffStrategy{
				Kind:      b.Kind,
				BaseDelay: b.BaseDelay,
				MaxDelay:  b.MaxDelay,
				Jitter:    b.Jitter,
			}
		}
	}
	return s
}

// FromDomain populates the persistence model from a subscription. The
// handler name comes from the attached handler.
func (m *SubscriptionModel) FromDomain(s *event.Subscription) {
	m.ID = s.ID
	m.Name = s.Name
	if s.Handler != nil {
		m.HandlerName = s.Handler.Name()
	}
	m.Priority = s.Priority
	m.Enabled = s.Enabled
	m.TimeoutMillis = s.Timeout.Milliseconds()

	if data, err := json.Marshal(s.EventTypes); err == nil {
		m.EventTypesJSON = string(data)
	}
	if data, err := json.Marshal(s.EntityTypes); err == nil {
		m.EntityTypesJSON = string(data)
	}
	if data, err := json.Marshal(s.Sources); err == nil {
		m.SourcesJSON = string(data)
	}

	filter := subscriptionFilterJSON{Mode: s.Filter.Mode}
	for _, c := range s.Filter.Conditions {
		filter.Conditions = append(filter.Conditions, conditionJSON{
			Path:   c.Path,
			Op:     c.Op,
			Value:  c.Value,
			Values: c.Values,
		})
	}
	if data, err := json.Marshal(filter); err == nil {
		m.FilterJSON = string(data)
	}

	backoff := backoffJSON{
		Kind:      s.Backoff.Kind,
		BaseDelay: s.Backoff.BaseDelay,
		MaxDelay:  s.Backoff.MaxDelay,
		Jitter:    s.Backoff.Jitter,
	}
	if data, err := json.Marshal(backoff); err == nil {
		m.BackoffJSON = string(data)
	}
}
