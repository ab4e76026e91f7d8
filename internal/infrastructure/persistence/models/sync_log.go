package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/reconcile"
)

// SyncLogModel is the persistence model for sync run records. A row in
// `running` status is the per-user single-flight lock, so Status carries
// an index.
type SyncLogModel struct {
	ID             uuid.UUID           `gorm:"type:uuid;primary_key"`
	UserID         uuid.UUID           `gorm:"type:uuid;not null;index:idx_sync_logs_user_status,priority:1"`
	Direction      reconcile.Direction `gorm:"type:varchar(30);not null"`
	SyncProducts   bool                `gorm:"not null;default:false"`
	SyncInventory  bool                `gorm:"not null;default:false"`
	SyncOrders     bool                `gorm:"not null;default:false"`
	Status         reconcile.RunStatus `gorm:"type:varchar(20);not null;index:idx_sync_logs_user_status,priority:2"`
	ItemsProcessed int                 `gorm:"not null;default:0"`
	ItemsSucceeded int                 `gorm:"not null;default:0"`
	ItemsFailed    int                 `gorm:"not null;default:0"`
	ErrorsJSON     string              `gorm:"type:jsonb;column:errors"`
	StartedAt      time.Time           `gorm:"not null;index"`
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog entity.
func (m *SyncLogModel) ToDomain() *reconcile.SyncLog {
	log := &reconcile.SyncLog{
		ID:        m.ID,
		UserID:    m.UserID,
		Direction: m.Direction,
		DataTypes: reconcile.DataTypes{
			Products:  m.SyncProducts,
			Inventory: m.SyncInventory,
			Orders:    m.SyncOrders,
		},
		Status:         m.Status,
		ItemsProcessed: m.ItemsProcessed,
		ItemsSucceeded: m.ItemsSucceeded,
		ItemsFailed:    m.ItemsFailed,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
	if m.ErrorsJSON != "" {
		_ = json.Unmarshal([]byte(m.ErrorsJSON), &log.Errors)
	}
	return log
}

// FromDomain populates the persistence model from a domain SyncLog.
func (m *SyncLogModel) FromDomain(log *reconcile.SyncLog) {
	m.ID = log.ID
	m.UserID = log.UserID
	m.Direction = log.Direction
	m.SyncProducts = log.DataTypes.Products
	m.SyncInventory = log.DataTypes.Inventory
	m.SyncOrders = log.DataTypes.Orders
	m.Status = log.Status
	m.ItemsProcessed = log.ItemsProcessed
	m.ItemsSucceeded = log.ItemsSucceeded
	m.ItemsFailed = log.ItemsFailed
	m.StartedAt = log.StartedAt
	m.CompletedAt = log.CompletedAt

	if len(log.Errors) > 0 {
		if data, err := json.Marshal(log.Errors); err == nil {
			m.ErrorsJSON = string(data)
		}
	} else {
		m.ErrorsJSON = "[]"
	}
}

// SyncLogModelFromDomain creates a persistence model from a domain
// SyncLog.
func SyncLogModelFromDomain(log *reconcile.SyncLog) *SyncLogModel {
	m := &SyncLogModel{}
	m.FromDomain(log)
	return m
}
