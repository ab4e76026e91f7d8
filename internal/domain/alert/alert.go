package alert

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAlertNotFound = errors.New("alert: not found")

// Kind classifies what raised the alert.
type Kind string

const (
	KindRateLimit  Kind = "RATE_LIMIT"
	KindIntegrity  Kind = "INTEGRITY"
	KindEscalation Kind = "ESCALATION"
	KindRollback   Kind = "ROLLBACK"
)

// Severity of an alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a persisted operator-facing signal. No failure is only visible
// in logs; anything alert-worthy gets a row here as well.
type Alert struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Kind         Kind
	Severity     Severity
	Message      string
	Details      json.RawMessage
	Acknowledged bool
	CreatedAt    time.Time
}

// New creates an alert. Details marshal failures are swallowed; an alert
// with empty details is still an alert.
func New(userID uuid.UUID, kind Kind, severity Severity, message string, details any) *Alert {
	a := &Alert{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if details != nil {
		a.Details, _ = json.Marshal(details)
	}
	return a
}

// Repository persists alerts.
type Repository interface {
	Save(ctx context.Context, a *Alert) error
	FindByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	List(ctx context.Context, userID uuid.UUID, unacknowledgedOnly bool, page, pageSize int) ([]Alert, int64, error)
	Acknowledge(ctx context.Context, id uuid.UUID) error
}
