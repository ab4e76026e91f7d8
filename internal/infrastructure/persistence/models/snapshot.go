package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
)

// SnapshotModel is the persistence model for entity snapshots. Rows are
// append-only; versions for one entity form a chain through
// PreviousSnapshotID.
type SnapshotModel struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primary_key"`
	UserID             uuid.UUID     `gorm:"type:uuid;not null;index:idx_snapshots_entity,priority:1"`
	EntityID           string        `gorm:"type:varchar(100);not null;index:idx_snapshots_entity,priority:4"`
	Platform           platform.Code `gorm:"type:varchar(20);not null;index:idx_snapshots_entity,priority:2"`
	Kind               mapping.Kind  `gorm:"type:varchar(20);not null;index:idx_snapshots_entity,priority:3"`
	Type               snapshot.Type `gorm:"type:varchar(20);not null"`
	Data               []byte        `gorm:"type:bytea;not null"`
	Checksum           string        `gorm:"type:varchar(64);not null"`
	Version            int           `gorm:"not null"`
	PreviousSnapshotID *uuid.UUID    `gorm:"type:uuid"`
	CreatedAt          time.Time     `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "entity_snapshots"
}

// ToDomain converts the persistence model to a domain Snapshot entity.
func (m *SnapshotModel) ToDomain() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ID:                 m.ID,
		UserID:             m.UserID,
		EntityID:           m.EntityID,
		Platform:           m.Platform,
		Kind:               m.Kind,
		Type:               m.Type,
		Data:               m.Data,
		Checksum:           m.Checksum,
		Version:            m.Version,
		PreviousSnapshotID: m.PreviousSnapshotID,
		CreatedAt:          m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Snapshot.
func (m *SnapshotModel) FromDomain(s *snapshot.Snapshot) {
	m.ID = s.ID
	m.UserID = s.UserID
	m.EntityID = s.EntityID
	m.Platform = s.Platform
	m.Kind = s.Kind
	m.Type = s.Type
	m.Data = s.Data
	m.Checksum = s.Checksum
	m.Version = s.Version
	m.PreviousSnapshotID = s.PreviousSnapshotID
	m.CreatedAt = s.CreatedAt
}

// SnapshotModelFromDomain creates a persistence model from a domain
// Snapshot.
func SnapshotModelFromDomain(s *snapshot.Snapshot) *SnapshotModel {
	m := &SnapshotModel{}
	m.FromDomain(s)
	return m
}

// RestorePointModel is the persistence model for named restore points.
// The member snapshot IDs are stored as a JSON array.
type RestorePointModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index"`
	Name            string    `gorm:"type:varchar(200);not null"`
	SnapshotIDsJSON string    `gorm:"type:jsonb;column:snapshot_ids"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (RestorePointModel) TableName() string {
	return "restore_points"
}

// ToDomain converts the persistence model to a domain RestorePoint.
func (m *RestorePointModel) ToDomain() *snapshot.RestorePoint {
	p := &snapshot.RestorePoint{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
	if m.SnapshotIDsJSON != "" {
		_ = json.Unmarshal([]byte(m.SnapshotIDsJSON), &p.SnapshotIDs)
	}
	return p
}

// FromDomain populates the persistence model from a domain RestorePoint.
func (m *RestorePointModel) FromDomain(p *snapshot.RestorePoint) {
	m.ID = p.ID
	m.UserID = p.UserID
	m.Name = p.Name
	m.CreatedAt = p.CreatedAt
	if data, err := json.Marshal(p.SnapshotIDs); err == nil {
		m.SnapshotIDsJSON = string(data)
	}
}

// RestorePointModelFromDomain creates a persistence model from a domain
// RestorePoint.
func RestorePointModelFromDomain(p *snapshot.RestorePoint) *RestorePointModel {
	m := &RestorePointModel{}
	m.FromDomain(p)
	return m
}

// RollbackOperationModel is the persistence model for rollback runs.
type RollbackOperationModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	RestorePointID  *uuid.UUID `gorm:"type:uuid;index"`
	TargetTimestamp *time.Time
	Status          snapshot.RollbackStatus `gorm:"type:varchar(20);not null;index"`
	ItemsRestored   int                     `gorm:"not null;default:0"`
	ItemsFailed     int                     `gorm:"not null;default:0"`
	DryRun          bool                    `gorm:"not null;default:false"`
	StartedAt       time.Time               `gorm:"not null;index"`
	CompletedAt     *time.Time
}

// TableName returns the table name for GORM
func (RollbackOperationModel) TableName() string {
	return "rollback_operations"
}

// ToDomain converts the persistence model to a domain RollbackOperation.
func (m *RollbackOperationModel) ToDomain() *snapshot.RollbackOperation {
	return &snapshot.RollbackOperation{
		ID:              m.ID,
		UserID:          m.UserID,
		RestorePointID:  m.RestorePointID,
		TargetTimestamp: m.TargetTimestamp,
		Status:          m.Status,
		ItemsRestored:   m.ItemsRestored,
		ItemsFailed:     m.ItemsFailed,
		DryRun:          m.DryRun,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain
// RollbackOperation.
func (m *RollbackOperationModel) FromDomain(op *snapshot.RollbackOperation) {
	m.ID = op.ID
	m.UserID = op.UserID
	m.RestorePointID = op.RestorePointID
	m.TargetTimestamp = op.TargetTimestamp
	m.Status = op.Status
	m.ItemsRestored = op.ItemsRestored
	m.ItemsFailed = op.ItemsFailed
	m.DryRun = op.DryRun
	m.StartedAt = op.StartedAt
	m.CompletedAt = op.CompletedAt
}

// RollbackOperationModelFromDomain creates a persistence model from a
// domain RollbackOperation.
func RollbackOperationModelFromDomain(op *snapshot.RollbackOperation) *RollbackOperationModel {
	m := &RollbackOperationModel{}
	m.FromDomain(op)
	return m
}
