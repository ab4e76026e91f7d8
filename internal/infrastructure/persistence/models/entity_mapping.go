package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
)

// EntityMappingModel is the persistence model for the EntityMapping domain
// entity. The unique index over (user, kind, source platform, source ID)
// backs the repository's atomic find-or-create.
type EntityMappingModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_entity_mapping_source_key,priority:1"`
	Kind           mapping.Kind   `gorm:"type:varchar(20);not null;uniqueIndex:idx_entity_mapping_source_key,priority:2"`
	SourcePlatform platform.Code  `gorm:"type:varchar(20);not null;uniqueIndex:idx_entity_mapping_source_key,priority:3"`
	SourceID       string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_entity_mapping_source_key,priority:4"`
	TargetID       string         `gorm:"type:varchar(100);index:idx_entity_mapping_target"`
	Status         mapping.Status `gorm:"type:varchar(20);not null;default:'PENDING'"`
	LastError      string         `gorm:"type:text"`
	LastSyncedAt   *time.Time     `gorm:"index"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EntityMappingModel) TableName() string {
	return "entity_mappings"
}

// ToDomain converts the persistence model to a domain EntityMapping entity.
func (m *EntityMappingModel) ToDomain() *mapping.EntityMapping {
	return &mapping.EntityMapping{
		ID:             m.ID,
		UserID:         m.UserID,
		Kind:           m.Kind,
		SourcePlatform: m.SourcePlatform,
		SourceID:       m.SourceID,
		TargetID:       m.TargetID,
		Status:         m.Status,
		LastError:      m.LastError,
		LastSyncedAt:   m.LastSyncedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain EntityMapping.
func (m *EntityMappingModel) FromDomain(e *mapping.EntityMapping) {
	m.ID = e.ID
	m.UserID = e.UserID
	m.Kind = e.Kind
	m.SourcePlatform = e.SourcePlatform
	m.SourceID = e.SourceID
	m.TargetID = e.TargetID
	m.Status = e.Status
	m.LastError = e.LastError
	m.LastSyncedAt = e.LastSyncedAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// EntityMappingModelFromDomain creates a persistence model from a domain
// EntityMapping.
func EntityMappingModelFromDomain(e *mapping.EntityMapping) *EntityMappingModel {
	m := &EntityMappingModel{}
	m.FromDomain(e)
	return m
}
