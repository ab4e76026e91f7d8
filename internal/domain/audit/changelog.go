package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/platform"
)

var (
	ErrInvalidEntityID  = errors.New("audit: invalid entity ID")
	ErrInvalidOperation = errors.New("audit: invalid operation")
)

// Operation is the kind of mutation being recorded.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// IsValid returns true if the operation is valid
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Source identifies what caused a change.
type Source string

const (
	SourceSync     Source = "SYNC"
	SourceManual   Source = "MANUAL"
	SourceRollback Source = "ROLLBACK"
	SourceWebhook  Source = "WEBHOOK"
)

// RestoredField is the field name written for rollback restorations so that
// rollbacks are themselves auditable.
const RestoredField = "_restored"

// Entry is one append-only audit row: one changed field, or one structural
// diff for object-valued fields.
type Entry struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	EntityType       string
	EntityID         string
	Platform         platform.Code
	Operation        Operation
	FieldName        string
	OldValue         json.RawMessage
	NewValue         json.RawMessage
	ValueDiff        json.RawMessage
	ChangeSource     Source
	BeforeSnapshotID *uuid.UUID
	AfterSnapshotID  *uuid.UUID
	CreatedAt        time.Time
}

// NewEntry builds an audit entry, computing the value diff. It returns an
// error only for structurally invalid input; marshal failures degrade to a
// nil diff because the audit log must never block the mutation it records.
func NewEntry(userID uuid.UUID, entityType, entityID string, code platform.Code, op Operation, fieldName string, oldValue, newValue any, source Source) (*Entry, error) {
	if entityID == "" {
		return nil, ErrInvalidEntityID
	}
	if !op.IsValid() {
		return nil, ErrInvalidOperation
	}
	e := &Entry{
		ID:           uuid.New(),
		UserID:       userID,
		EntityType:   entityType,
		EntityID:     entityID,
		Platform:     code,
		Operation:    op,
		FieldName:    fieldName,
		ChangeSource: source,
		CreatedAt:    time.Now(),
	}
	e.OldValue, _ = json.Marshal(oldValue)
	e.NewValue, _ = json.Marshal(newValue)
	if diff, ok := Diff(oldValue, newValue); ok {
		e.ValueDiff, _ = json.Marshal(diff)
	}
	return e, nil
}

// WithSnapshots links the entry to the snapshots taken around the change.
func (e *Entry) WithSnapshots(before, after *uuid.UUID) *Entry {
	e.BeforeSnapshotID = before
	e.AfterSnapshotID = after
	return e
}

// FieldDiff is the recorded difference for one object key.
type FieldDiff struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff computes the audit diff between two values. For scalar values it
// records a boolean changed flag; for object values it computes a shallow
// key-wise diff over the union of keys, keeping only keys whose serialized
// form differs. Intentionally not recursive: this is an audit aid, not a
// structural merge tool.
func Diff(oldValue, newValue any) (map[string]any, bool) {
	oldMap, oldIsMap := asMap(oldValue)
	newMap, newIsMap := asMap(newValue)

	if !oldIsMap || !newIsMap {
		changed := !jsonEqual(oldValue, newValue)
		return map[string]any{"changed": changed}, changed
	}

	diff := make(map[string]any)
	for key := range oldMap {
		if !jsonEqual(oldMap[key], newMap[key]) {
			diff[key] = FieldDiff{Old: oldMap[key], New: newMap[key]}
		}
	}
	for key := range newMap {
		if _, seen := oldMap[key]; seen {
			continue
		}
		if !jsonEqual(nil, newMap[key]) {
			diff[key] = FieldDiff{Old: nil, New: newMap[key]}
		}
	}
	return diff, len(diff) > 0
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// Query narrows change-log reads.
type Query struct {
	EntityID string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Repository persists audit entries. Append-only.
type Repository interface {
	// Save appends one entry
	Save(ctx context.Context, e *Entry) error
	// SaveBatch appends multiple entries
	SaveBatch(ctx context.Context, entries []*Entry) error
	// FindByEntity returns changes for one entity within a time range
	FindByEntity(ctx context.Context, userID uuid.UUID, q Query) ([]Entry, int64, error)
}
