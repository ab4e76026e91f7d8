package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/platform"
)

var (
	ErrSyncLogNotFound  = errors.New("reconcile: sync log not found")
	ErrInvalidDirection = errors.New("reconcile: invalid sync direction")
	ErrNothingRequested = errors.New("reconcile: no data types requested")
)

// Direction names which way a sync pass flows.
type Direction string

const (
	DirectionNetSuiteToShopify Direction = "netsuite_to_shopify"
	DirectionShopifyToNetSuite Direction = "shopify_to_netsuite"
	DirectionBidirectional     Direction = "bidirectional"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	switch d {
	case DirectionNetSuiteToShopify, DirectionShopifyToNetSuite, DirectionBidirectional:
		return true
	default:
		return false
	}
}

// Leg is one source-to-target flow of a sync pass.
type Leg struct {
	Source platform.Code
	Target platform.Code
}

// Legs expands a direction into its source/target flows.
func (d Direction) Legs() []Leg {
	ns2sh := Leg{Source: platform.CodeNetSuite, Target: platform.CodeShopify}
	sh2ns := Leg{Source: platform.CodeShopify, Target: platform.CodeNetSuite}
	switch d {
	case DirectionNetSuiteToShopify:
		return []Leg{ns2sh}
	case DirectionShopifyToNetSuite:
		return []Leg{sh2ns}
	case DirectionBidirectional:
		return []Leg{ns2sh, sh2ns}
	default:
		return nil
	}
}

// DataTypes selects which entity kinds a sync pass covers.
type DataTypes struct {
	Products  bool
	Inventory bool
	Orders    bool
}

// Any reports whether at least one data type is selected.
func (t DataTypes) Any() bool {
	return t.Products || t.Inventory || t.Orders
}

// RunStatus is the lifecycle state of one sync run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusPartialSuccess RunStatus = "partial_success"
	RunStatusFailed         RunStatus = "failed"
)

// ItemError pairs a failed item with its error message. Every run returns
// these alongside aggregate counts; failures are never log-only.
type ItemError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// MaxRecordedErrors bounds the per-run error list.
const MaxRecordedErrors = 50

// SyncLog is the persisted record of one sync run. A row in `running`
// status doubles as the advisory single-flight lock per user: a new run is
// rejected while one exists.
type SyncLog struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Direction      Direction
	DataTypes      DataTypes
	Status         RunStatus
	ItemsProcessed int
	ItemsSucceeded int
	ItemsFailed    int
	Errors         []ItemError
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// NewSyncLog starts tracking a sync run.
func NewSyncLog(userID uuid.UUID, direction Direction, dataTypes DataTypes) (*SyncLog, error) {
	if userID == uuid.Nil {
		return nil, errors.New("reconcile: invalid user ID")
	}
	if !direction.IsValid() {
		return nil, ErrInvalidDirection
	}
	if !dataTypes.Any() {
		return nil, ErrNothingRequested
	}
	return &SyncLog{
		ID:        uuid.New(),
		UserID:    userID,
		Direction: direction,
		DataTypes: dataTypes,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}, nil
}

// Record folds one leg's counts and errors into the run totals. The error
// list is bounded; counts are not.
func (l *SyncLog) Record(processed, succeeded, failed int, errs []ItemError) {
	l.ItemsProcessed += processed
	l.ItemsSucceeded += succeeded
	l.ItemsFailed += failed
	for _, e := range errs {
		if len(l.Errors) >= MaxRecordedErrors {
			break
		}
		l.Errors = append(l.Errors, e)
	}
}

// Finalize moves the run to its terminal status based on counts.
func (l *SyncLog) Finalize() {
	now := time.Now()
	l.CompletedAt = &now
	switch {
	case l.ItemsFailed == 0:
		l.Status = RunStatusCompleted
	case l.ItemsSucceeded > 0:
		l.Status = RunStatusPartialSuccess
	default:
		l.Status = RunStatusFailed
	}
}

// Abort marks a run failed before any items were attempted.
func (l *SyncLog) Abort() {
	now := time.Now()
	l.CompletedAt = &now
	l.Status = RunStatusFailed
}

// Repository persists sync logs.
type Repository interface {
	// Create persists a new run row
	Create(ctx context.Context, l *SyncLog) error
	// Update persists run progress and terminal state
	Update(ctx context.Context, l *SyncLog) error
	// FindByID finds a run by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)
	// FindRunning returns the in-flight run for a user, or ErrSyncLogNotFound
	FindRunning(ctx context.Context, userID uuid.UUID) (*SyncLog, error)
	// List returns run history for a user, newest first
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]SyncLog, int64, error)
}
