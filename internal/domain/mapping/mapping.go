package mapping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/platform"
)

var (
	ErrMappingNotFound    = errors.New("mapping: not found")
	ErrInvalidUserID      = errors.New("mapping: invalid user ID")
	ErrInvalidKind        = errors.New("mapping: invalid entity kind")
	ErrInvalidSourceID    = errors.New("mapping: invalid source system ID")
	ErrInvalidTargetID    = errors.New("mapping: invalid target system ID")
	ErrTargetAlreadyBound = errors.New("mapping: target already bound to a different ID")
)

// Kind is the logical business entity a mapping translates.
type Kind string

const (
	KindItem     Kind = "ITEM"
	KindOrder    Kind = "ORDER"
	KindCustomer Kind = "CUSTOMER"
)

// IsValid returns true if the kind is valid
func (k Kind) IsValid() bool {
	switch k {
	case KindItem, KindOrder, KindCustomer:
		return true
	default:
		return false
	}
}

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// Status is the sync status of a mapping.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// EntityMapping is the durable translation between a source-system ID and a
// target-system ID for one logical entity. It is the idempotency backbone:
// a bound target means "the remote counterpart exists, update it" and a
// create must never happen again.
//
// Invariant: at most one mapping row per (UserID, Kind, SourcePlatform,
// SourceID), enforced by a unique index plus upsert in the repository.
type EntityMapping struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Kind           Kind
	SourcePlatform platform.Code
	SourceID       string
	// TargetID is empty until the remote counterpart is created; once bound
	// it is immutable unless the counterpart is deleted and recreated.
	TargetID     string
	Status       Status
	LastError    string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewEntityMapping creates a pending mapping for a source entity.
func NewEntityMapping(userID uuid.UUID, kind Kind, sourcePlatform platform.Code, sourceID string) (*EntityMapping, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if !sourcePlatform.IsValid() {
		return nil, ErrInvalidSourceID
	}
	if sourceID == "" {
		return nil, ErrInvalidSourceID
	}
	now := time.Now()
	return &EntityMapping{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           kind,
		SourcePlatform: sourcePlatform,
		SourceID:       sourceID,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasTarget reports whether the remote counterpart exists.
func (m *EntityMapping) HasTarget() bool {
	return m.TargetID != ""
}

// BindTarget records the remote counterpart's ID. Binding the same ID twice
// is a no-op; binding a different ID is a conflict.
func (m *EntityMapping) BindTarget(targetID string) error {
	if targetID == "" {
		return ErrInvalidTargetID
	}
	if m.TargetID != "" {
		if m.TargetID == targetID {
			return nil
		}
		return ErrTargetAlreadyBound
	}
	m.TargetID = targetID
	m.UpdatedAt = time.Now()
	return nil
}

// Unbind clears the target after the remote counterpart was deleted.
func (m *EntityMapping) Unbind() {
	m.TargetID = ""
	m.Status = StatusPending
	m.UpdatedAt = time.Now()
}

// MarkCompleted records a successful sync of this entity.
func (m *EntityMapping) MarkCompleted() {
	now := time.Now()
	m.Status = StatusCompleted
	m.LastError = ""
	m.LastSyncedAt = &now
	m.UpdatedAt = now
}

// MarkFailed records a failed sync of this entity.
func (m *EntityMapping) MarkFailed(errMsg string) {
	now := time.Now()
	m.Status = StatusFailed
	m.LastError = errMsg
	m.LastSyncedAt = &now
	m.UpdatedAt = now
}

// Filter narrows mapping listings.
type Filter struct {
	Kind     *Kind
	Status   *Status
	Page     int
	PageSize int
}

// Repository persists entity mappings. FindOrCreate must be atomic with
// respect to concurrent callers for the same (user, kind, platform, source)
// key: implementations use a unique constraint plus upsert, never
// read-then-write.
type Repository interface {
	// FindOrCreate returns the existing mapping for the key or atomically
	// creates a pending one.
	FindOrCreate(ctx context.Context, userID uuid.UUID, kind Kind, sourcePlatform platform.Code, sourceID string) (*EntityMapping, error)

	// FindByID finds a mapping by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*EntityMapping, error)

	// FindBySource finds a mapping by its source key
	FindBySource(ctx context.Context, userID uuid.UUID, kind Kind, sourcePlatform platform.Code, sourceID string) (*EntityMapping, error)

	// FindByTarget finds the mapping that owns a target-system ID
	FindByTarget(ctx context.Context, userID uuid.UUID, kind Kind, targetID string) (*EntityMapping, error)

	// BindTarget atomically binds a target ID to a mapping
	BindTarget(ctx context.Context, id uuid.UUID, targetID string) error

	// Save updates an existing mapping
	Save(ctx context.Context, m *EntityMapping) error

	// Delete removes a mapping
	Delete(ctx context.Context, id uuid.UUID) error

	// FindAll lists mappings for a user with optional filters
	FindAll(ctx context.Context, userID uuid.UUID, filter Filter) ([]EntityMapping, int64, error)
}
