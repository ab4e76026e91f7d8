package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/application/audit"
	"github.com/syncbridge/backend/internal/domain/alert"
	domaudit "github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// EntityRestorer writes a snapshot's payload back to the platform that owns
// the entity. Implemented by the reconciler so the rollback engine stays
// free of platform client details.
type EntityRestorer interface {
	Restore(ctx context.Context, userID uuid.UUID, snap *snapshot.Snapshot) error
}

// RollbackRequest selects what to roll back. Exactly one of RestorePointID
// and TargetTime picks the snapshot set; the optional filters narrow it.
type RollbackRequest struct {
	RestorePointID *uuid.UUID
	TargetTime     *time.Time
	DryRun         bool
	Platforms      []platform.Code
	EntityIDs      []string
}

// RollbackResult reports the outcome of a rollback run. Per-entity failures
// are collected, never fatal to the rest of the run.
type RollbackResult struct {
	OperationID   uuid.UUID `json:"operation_id"`
	Success       bool      `json:"success"`
	DryRun        bool      `json:"dry_run"`
	ItemsRestored int       `json:"items_restored"`
	ItemsFailed   int       `json:"items_failed"`
	Errors        []string  `json:"errors,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
}

// Roller executes rollback operations.
type Roller struct {
	snapshots     snapshot.Repository
	restorePoints snapshot.RestorePointRepository
	rollbacks     snapshot.RollbackRepository
	restorer      EntityRestorer
	tracker       *audit.Tracker
	alerts        alert.Repository
	logger        *zap.Logger
}

// NewRoller creates a rollback engine.
func NewRoller(
	snapshots snapshot.Repository,
	restorePoints snapshot.RestorePointRepository,
	rollbacks snapshot.RollbackRepository,
	restorer EntityRestorer,
	tracker *audit.Tracker,
	alerts alert.Repository,
	logger *zap.Logger,
) *Roller {
	return &Roller{
		snapshots:     snapshots,
		restorePoints: restorePoints,
		rollbacks:     rollbacks,
		restorer:      restorer,
		tracker:       tracker,
		alerts:        alerts,
		logger:        logger,
	}
}

// Rollback restores entities to a restore point or to their latest state at
// or before a timestamp. Restoration is best-effort per entity: corrupt or
// unwritable entities are counted and reported while the rest proceed.
func (r *Roller) Rollback(ctx context.Context, userID uuid.UUID, req RollbackRequest) (*RollbackResult, error) {
	if (req.RestorePointID == nil) == (req.TargetTime == nil) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Exactly one of restore_point_id and target_time is required")
	}

	selected, warnings, err := r.selectSnapshots(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	selected = filterSnapshots(selected, req)

	op := snapshot.NewRollbackOperation(userID, req.RestorePointID, req.TargetTime, req.DryRun)
	if err := r.rollbacks.Save(ctx, op); err != nil {
		return nil, err
	}

	if req.DryRun {
		if err := op.Finish(len(selected), 0); err != nil {
			return nil, err
		}
		if err := r.rollbacks.Update(ctx, op); err != nil {
			return nil, err
		}
		return &RollbackResult{
			OperationID:   op.ID,
			Success:       true,
			DryRun:        true,
			ItemsRestored: len(selected),
			Warnings:      warnings,
		}, nil
	}

	restored, failed := 0, 0
	var errs []string
	for i := range selected {
		snap := &selected[i]
		if err := r.restoreOne(ctx, userID, snap); err != nil {
			failed++
			errs = append(errs, fmt.Sprintf("%s: %v", snap.EntityID, err))
			continue
		}
		restored++
	}

	if err := op.Finish(restored, failed); err != nil {
		return nil, err
	}
	if err := r.rollbacks.Update(ctx, op); err != nil {
		return nil, err
	}

	if failed > 0 {
		a := alert.New(userID, alert.KindRollback, alert.SeverityWarning,
			fmt.Sprintf("rollback %s finished with %d failed entities", op.ID, failed),
			map[string]any{"operation_id": op.ID, "items_restored": restored, "items_failed": failed})
		if saveErr := r.alerts.Save(ctx, a); saveErr != nil {
			r.logger.Error("failed to save rollback alert", zap.Error(saveErr))
		}
	}

	r.logger.Info("rollback finished",
		zap.String("operation_id", op.ID.String()),
		zap.Int("items_restored", restored),
		zap.Int("items_failed", failed),
		zap.Int("warnings", len(warnings)),
	)
	return &RollbackResult{
		OperationID:   op.ID,
		Success:       failed == 0,
		ItemsRestored: restored,
		ItemsFailed:   failed,
		Errors:        errs,
		Warnings:      warnings,
	}, nil
}

// restoreOne verifies and writes one snapshot back, then records the
// restoration in the change log.
func (r *Roller) restoreOne(ctx context.Context, userID uuid.UUID, snap *snapshot.Snapshot) error {
	if !snap.Verify() {
		a := alert.New(userID, alert.KindIntegrity, alert.SeverityCritical,
			fmt.Sprintf("snapshot %s failed checksum verification during rollback", snap.ID),
			map[string]any{"snapshot_id": snap.ID, "entity_id": snap.EntityID})
		if saveErr := r.alerts.Save(ctx, a); saveErr != nil {
			r.logger.Error("failed to save integrity alert", zap.Error(saveErr))
		}
		return snapshot.ErrChecksumMismatch
	}

	if err := r.restorer.Restore(ctx, userID, snap); err != nil {
		r.logger.Warn("entity restore failed",
			zap.String("entity_id", snap.EntityID),
			zap.String("platform", snap.Platform.String()),
			zap.Error(err),
		)
		return err
	}

	_, err := r.tracker.LogChange(ctx, userID, audit.Change{
		EntityType:      string(snap.Kind),
		EntityID:        snap.EntityID,
		Platform:        snap.Platform,
		Operation:       domaudit.OperationUpdate,
		FieldName:       domaudit.RestoredField,
		NewValue:        snap.ID.String(),
		Source:          domaudit.SourceRollback,
		AfterSnapshotID: &snap.ID,
	})
	if err != nil {
		// The restore itself succeeded; an unrecorded change is log-worthy
		// but does not fail the entity.
		r.logger.Error("failed to record restoration in change log",
			zap.String("entity_id", snap.EntityID),
			zap.Error(err),
		)
	}
	return nil
}

// selectSnapshots resolves the rollback target to concrete snapshots.
// Entities with no qualifying snapshot become warnings.
func (r *Roller) selectSnapshots(ctx context.Context, userID uuid.UUID, req RollbackRequest) ([]snapshot.Snapshot, []string, error) {
	if req.RestorePointID != nil {
		rp, err := r.restorePoints.FindByID(ctx, *req.RestorePointID)
		if err != nil {
			return nil, nil, err
		}
		snaps, err := r.snapshots.FindByIDs(ctx, rp.SnapshotIDs)
		if err != nil {
			return nil, nil, err
		}
		var warnings []string
		if len(snaps) < len(rp.SnapshotIDs) {
			warnings = append(warnings, fmt.Sprintf("%d snapshots referenced by restore point no longer exist", len(rp.SnapshotIDs)-len(snaps)))
		}
		return snaps, warnings, nil
	}

	refs, err := r.snapshots.ListTrackedEntities(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var selected []snapshot.Snapshot
	var warnings []string
	for _, ref := range refs {
		snap, err := r.snapshots.FindLatestBefore(ctx, userID, ref.EntityID, ref.Platform, *req.TargetTime)
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			warnings = append(warnings, fmt.Sprintf("no snapshot of %s on %s at or before %s", ref.EntityID, ref.Platform, req.TargetTime.Format(time.RFC3339)))
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		selected = append(selected, *snap)
	}
	return selected, warnings, nil
}

func filterSnapshots(snaps []snapshot.Snapshot, req RollbackRequest) []snapshot.Snapshot {
	if len(req.Platforms) == 0 && len(req.EntityIDs) == 0 {
		return snaps
	}
	platformSet := make(map[platform.Code]bool, len(req.Platforms))
	for _, p := range req.Platforms {
		platformSet[p] = true
	}
	entitySet := make(map[string]bool, len(req.EntityIDs))
	for _, id := range req.EntityIDs {
		entitySet[id] = true
	}

	var out []snapshot.Snapshot
	for _, snap := range snaps {
		if len(platformSet) > 0 && !platformSet[snap.Platform] {
			continue
		}
		if len(entitySet) > 0 && !entitySet[snap.EntityID] {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// GetRollback loads one rollback operation.
func (r *Roller) GetRollback(ctx context.Context, id uuid.UUID) (*snapshot.RollbackOperation, error) {
	return r.rollbacks.FindByID(ctx, id)
}

// ListRollbacks lists a user's rollback history.
func (r *Roller) ListRollbacks(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RollbackOperation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return r.rollbacks.List(ctx, userID, page, pageSize)
}
