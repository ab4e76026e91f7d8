package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/alert"
)

// AlertModel is the persistence model for operator-facing alerts.
type AlertModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_alerts_user_ack,priority:1"`
	Kind         alert.Kind      `gorm:"type:varchar(20);not null;index"`
	Severity     alert.Severity  `gorm:"type:varchar(10);not null"`
	Message      string          `gorm:"type:text;not null"`
	Details      json.RawMessage `gorm:"type:jsonb"`
	Acknowledged bool            `gorm:"not null;default:false;index:idx_alerts_user_ack,priority:2"`
	CreatedAt    time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AlertModel) TableName() string {
	return "alerts"
}

// ToDomain converts the persistence model to a domain Alert entity.
func (m *AlertModel) ToDomain() *alert.Alert {
	return &alert.Alert{
		ID:           m.ID,
		UserID:       m.UserID,
		Kind:         m.Kind,
		Severity:     m.Severity,
		Message:      m.Message,
		Details:      m.Details,
		Acknowledged: m.Acknowledged,
		CreatedAt:    m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Alert.
func (m *AlertModel) FromDomain(a *alert.Alert) {
	m.ID = a.ID
	m.UserID = a.UserID
	m.Kind = a.Kind
	m.Severity = a.Severity
	m.Message = a.Message
	m.Details = a.Details
	m.Acknowledged = a.Acknowledged
	m.CreatedAt = a.CreatedAt
}

// AlertModelFromDomain creates a persistence model from a domain Alert.
func AlertModelFromDomain(a *alert.Alert) *AlertModel {
	m := &AlertModel{}
	m.FromDomain(a)
	return m
}
