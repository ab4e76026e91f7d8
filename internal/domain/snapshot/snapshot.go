package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
)

var (
	ErrSnapshotNotFound     = errors.New("snapshot: not found")
	ErrRestorePointNotFound = errors.New("snapshot: restore point not found")
	ErrRollbackNotFound     = errors.New("snapshot: rollback operation not found")
	ErrInvalidEntityID      = errors.New("snapshot: invalid entity ID")
	ErrInvalidPlatform      = errors.New("snapshot: invalid platform code")
	ErrInvalidType          = errors.New("snapshot: invalid snapshot type")
	ErrEmptyData            = errors.New("snapshot: empty data")
	ErrChecksumMismatch     = errors.New("snapshot: checksum mismatch")
	ErrInvalidRollbackState = errors.New("snapshot: invalid rollback state transition")
)

// Type classifies why a snapshot was taken.
type Type string

const (
	TypePreSync  Type = "PRE_SYNC"
	TypePostSync Type = "POST_SYNC"
	TypeManual   Type = "MANUAL"
)

// IsValid returns true if the snapshot type is valid
func (t Type) IsValid() bool {
	switch t {
	case TypePreSync, TypePostSync, TypeManual:
		return true
	default:
		return false
	}
}

// EntityRef identifies one entity on one platform.
type EntityRef struct {
	EntityID string
	Platform platform.Code
	Kind     mapping.Kind
}

// Snapshot is an immutable, checksummed capture of an entity's state at a
// point in time. Versions increase per (entity, platform); each snapshot
// links to its predecessor for audit chaining.
type Snapshot struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	EntityID           string
	Platform           platform.Code
	Kind               mapping.Kind
	Type               Type
	Data               []byte
	Checksum           string
	Version            int
	PreviousSnapshotID *uuid.UUID
	CreatedAt          time.Time
}

// ComputeChecksum returns the content hash of a snapshot payload.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// New creates a snapshot of an entity payload. The version and predecessor
// link come from the previously stored snapshot, if any.
func New(userID uuid.UUID, ref EntityRef, typ Type, data []byte, version int, previous *uuid.UUID) (*Snapshot, error) {
	if ref.EntityID == "" {
		return nil, ErrInvalidEntityID
	}
	if !ref.Platform.IsValid() {
		return nil, ErrInvalidPlatform
	}
	if !typ.IsValid() {
		return nil, ErrInvalidType
	}
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	if version < 1 {
		version = 1
	}
	return &Snapshot{
		ID:                 uuid.New(),
		UserID:             userID,
		EntityID:           ref.EntityID,
		Platform:           ref.Platform,
		Kind:               ref.Kind,
		Type:               typ,
		Data:               data,
		Checksum:           ComputeChecksum(data),
		Version:            version,
		PreviousSnapshotID: previous,
		CreatedAt:          time.Now(),
	}, nil
}

// Verify recomputes the checksum over the stored data. A mismatch signals
// storage corruption, not a sync bug.
func (s *Snapshot) Verify() bool {
	return ComputeChecksum(s.Data) == s.Checksum
}

// Ref returns the entity reference of this snapshot.
func (s *Snapshot) Ref() EntityRef {
	return EntityRef{EntityID: s.EntityID, Platform: s.Platform, Kind: s.Kind}
}

// RestorePoint is a named set of snapshots captured relative to one point
// in time, usable as a single rollback target.
type RestorePoint struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	SnapshotIDs []uuid.UUID
	CreatedAt   time.Time
}

// NewRestorePoint creates a named restore point over a set of snapshots.
func NewRestorePoint(userID uuid.UUID, name string, snapshotIDs []uuid.UUID) (*RestorePoint, error) {
	if name == "" {
		return nil, errors.New("snapshot: restore point name required")
	}
	return &RestorePoint{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		SnapshotIDs: snapshotIDs,
		CreatedAt:   time.Now(),
	}, nil
}

// RollbackStatus is the lifecycle state of a rollback operation.
type RollbackStatus string

const (
	RollbackStatusRunning   RollbackStatus = "RUNNING"
	RollbackStatusCompleted RollbackStatus = "COMPLETED"
	RollbackStatusFailed    RollbackStatus = "FAILED"
)

// RollbackOperation records one reversible bulk restore. Terminal states are
// COMPLETED (zero failures) and FAILED (at least one failure). A dry run
// never mutates target systems.
type RollbackOperation struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	RestorePointID  *uuid.UUID
	TargetTimestamp *time.Time
	Status          RollbackStatus
	ItemsRestored   int
	ItemsFailed     int
	DryRun          bool
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// NewRollbackOperation starts tracking a rollback run.
func NewRollbackOperation(userID uuid.UUID, restorePointID *uuid.UUID, targetTimestamp *time.Time, dryRun bool) *RollbackOperation {
	return &RollbackOperation{
		ID:              uuid.New(),
		UserID:          userID,
		RestorePointID:  restorePointID,
		TargetTimestamp: targetTimestamp,
		Status:          RollbackStatusRunning,
		DryRun:          dryRun,
		StartedAt:       time.Now(),
	}
}

// Finish moves the operation to its terminal state based on counts.
func (op *RollbackOperation) Finish(restored, failed int) error {
	if op.Status != RollbackStatusRunning {
		return ErrInvalidRollbackState
	}
	now := time.Now()
	op.ItemsRestored = restored
	op.ItemsFailed = failed
	op.CompletedAt = &now
	if failed > 0 {
		op.Status = RollbackStatusFailed
	} else {
		op.Status = RollbackStatusCompleted
	}
	return nil
}

// Repository persists snapshots. Snapshots are append-only; there is no
// update operation.
type Repository interface {
	// Save appends a snapshot
	Save(ctx context.Context, s *Snapshot) error
	// FindByID finds a snapshot by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	// FindLatest returns the newest snapshot of an entity on a platform
	FindLatest(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (*Snapshot, error)
	// FindLatestBefore returns the newest snapshot at or before the given time
	FindLatestBefore(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code, at time.Time) (*Snapshot, error)
	// FindByIDs loads a set of snapshots by ID
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Snapshot, error)
	// ListTrackedEntities lists every (entity, platform) pair that has at
	// least one snapshot for the user
	ListTrackedEntities(ctx context.Context, userID uuid.UUID) ([]EntityRef, error)
	// CountByEntity returns the number of snapshots of one entity
	CountByEntity(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (int64, error)
}

// RestorePointRepository persists restore points.
type RestorePointRepository interface {
	Save(ctx context.Context, rp *RestorePoint) error
	FindByID(ctx context.Context, id uuid.UUID) (*RestorePoint, error)
	FindByName(ctx context.Context, userID uuid.UUID, name string) (*RestorePoint, error)
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]RestorePoint, int64, error)
}

// RollbackRepository persists rollback operations.
type RollbackRepository interface {
	Save(ctx context.Context, op *RollbackOperation) error
	Update(ctx context.Context, op *RollbackOperation) error
	FindByID(ctx context.Context, id uuid.UUID) (*RollbackOperation, error)
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]RollbackOperation, int64, error)
}
