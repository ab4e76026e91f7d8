// Package audit records who changed what across both platforms.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/platform"
	"go.uber.org/zap"
)

// Change is one field-level change to record.
type Change struct {
	EntityType string
	EntityID   string
	Platform   platform.Code
	Operation  audit.Operation
	FieldName  string
	OldValue   any
	NewValue   any
	Source     audit.Source
	// Snapshot references, set when the change was driven by a snapshot
	BeforeSnapshotID *uuid.UUID
	AfterSnapshotID  *uuid.UUID
}

// Tracker writes the change log. Logging a change never fails the
// operation that caused it; persistence errors surface to the caller so
// sync runs can count them, nothing more.
type Tracker struct {
	entries audit.Repository
	logger  *zap.Logger
}

// NewTracker creates a change tracker.
func NewTracker(entries audit.Repository, logger *zap.Logger) *Tracker {
	return &Tracker{entries: entries, logger: logger}
}

// LogChange records a single change.
func (t *Tracker) LogChange(ctx context.Context, userID uuid.UUID, c Change) (*audit.Entry, error) {
	entry, err := audit.NewEntry(userID, c.EntityType, c.EntityID, c.Platform, c.Operation, c.FieldName, c.OldValue, c.NewValue, c.Source)
	if err != nil {
		return nil, err
	}
	entry.WithSnapshots(c.BeforeSnapshotID, c.AfterSnapshotID)
	if err := t.entries.Save(ctx, entry); err != nil {
		t.logger.Error("failed to save change log entry",
			zap.String("entity_id", c.EntityID),
			zap.Error(err),
		)
		return nil, err
	}
	return entry, nil
}

// LogBatch records several changes in one write. Invalid changes fail the
// whole batch before anything is persisted.
func (t *Tracker) LogBatch(ctx context.Context, userID uuid.UUID, changes []Change) ([]*audit.Entry, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	entries := make([]*audit.Entry, 0, len(changes))
	for _, c := range changes {
		entry, err := audit.NewEntry(userID, c.EntityType, c.EntityID, c.Platform, c.Operation, c.FieldName, c.OldValue, c.NewValue, c.Source)
		if err != nil {
			return nil, err
		}
		entry.WithSnapshots(c.BeforeSnapshotID, c.AfterSnapshotID)
		entries = append(entries, entry)
	}
	if err := t.entries.SaveBatch(ctx, entries); err != nil {
		t.logger.Error("failed to save change log batch",
			zap.Int("count", len(entries)),
			zap.Error(err),
		)
		return nil, err
	}
	return entries, nil
}

// EntityChanges returns the change history for one entity.
func (t *Tracker) EntityChanges(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error) {
	return t.entries.FindByEntity(ctx, userID, q)
}
