package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/platform"
)

// ChangeLogModel is the persistence model for field-level audit entries.
// Append-only; there is no update path.
type ChangeLogModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_change_logs_entity,priority:1"`
	EntityType       string          `gorm:"type:varchar(50);not null;index:idx_change_logs_entity,priority:2"`
	EntityID         string          `gorm:"type:varchar(100);not null;index:idx_change_logs_entity,priority:3"`
	Platform         platform.Code   `gorm:"type:varchar(20);not null"`
	Operation        audit.Operation `gorm:"type:varchar(20);not null"`
	FieldName        string          `gorm:"type:varchar(100)"`
	OldValue         json.RawMessage `gorm:"type:jsonb"`
	NewValue         json.RawMessage `gorm:"type:jsonb"`
	ValueDiff        json.RawMessage `gorm:"type:jsonb"`
	ChangeSource     audit.Source    `gorm:"type:varchar(20);not null"`
	BeforeSnapshotID *uuid.UUID      `gorm:"type:uuid"`
	AfterSnapshotID  *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt        time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ChangeLogModel) TableName() string {
	return "change_logs"
}

// ToDomain converts the persistence model to a domain Entry.
func (m *ChangeLogModel) ToDomain() *audit.Entry {
	return &audit.Entry{
		ID:               m.ID,
		UserID:           m.UserID,
		EntityType:       m.EntityType,
		EntityID:         m.EntityID,
		Platform:         m.Platform,
		Operation:        m.Operation,
		FieldName:        m.FieldName,
		OldValue:         m.OldValue,
		NewValue:         m.NewValue,
		ValueDiff:        m.ValueDiff,
		ChangeSource:     m.ChangeSource,
		BeforeSnapshotID: m.BeforeSnapshotID,
		AfterSnapshotID:  m.AfterSnapshotID,
		CreatedAt:        m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Entry.
func (m *ChangeLogModel) FromDomain(e *audit.Entry) {
	m.ID = e.ID
	m.UserID = e.UserID
	m.EntityType = e.EntityType
	m.EntityID = e.EntityID
	m.Platform = e.Platform
	m.Operation = e.Operation
	m.FieldName = e.FieldName
	m.OldValue = e.OldValue
	m.NewValue = e.NewValue
	m.ValueDiff = e.ValueDiff
	m.ChangeSource = e.ChangeSource
	m.BeforeSnapshotID = e.BeforeSnapshotID
	m.AfterSnapshotID = e.AfterSnapshotID
	m.CreatedAt = e.CreatedAt
}

// ChangeLogModelFromDomain creates a persistence model from a domain
// Entry.
func ChangeLogModelFromDomain(e *audit.Entry) *ChangeLogModel {
	m := &ChangeLogModel{}
	m.FromDomain(e)
	return m
}
