// Package snapshot captures point-in-time entity state and restores it.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/alert"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// Service captures, verifies, and groups snapshots.
type Service struct {
	snapshots     snapshot.Repository
	restorePoints snapshot.RestorePointRepository
	alerts        alert.Repository
	logger        *zap.Logger
}

// NewService creates a snapshot service.
func NewService(
	snapshots snapshot.Repository,
	restorePoints snapshot.RestorePointRepository,
	alerts alert.Repository,
	logger *zap.Logger,
) *Service {
	return &Service{
		snapshots:     snapshots,
		restorePoints: restorePoints,
		alerts:        alerts,
		logger:        logger,
	}
}

// Capture snapshots an entity's current state. The version and predecessor
// link continue from the latest stored snapshot of the same entity.
func (s *Service) Capture(ctx context.Context, userID uuid.UUID, ref snapshot.EntityRef, typ snapshot.Type, payload any) (*snapshot.Snapshot, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal entity payload: %w", err)
	}

	version := 1
	var previous *uuid.UUID
	latest, err := s.snapshots.FindLatest(ctx, userID, ref.EntityID, ref.Platform)
	if err == nil {
		version = latest.Version + 1
		previous = &latest.ID
	} else if !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		return nil, err
	}

	snap, err := snapshot.New(userID, ref, typ, data, version, previous)
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot captured",
		zap.String("entity_id", ref.EntityID),
		zap.String("platform", ref.Platform.String()),
		zap.String("type", string(typ)),
		zap.Int("version", version),
	)
	return snap, nil
}

// Verify recomputes a stored snapshot's checksum. A mismatch raises an
// integrity alert and is never repaired in place.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) error {
	snap, err := s.snapshots.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if snap.Verify() {
		return nil
	}

	s.logger.Error("snapshot failed integrity verification",
		zap.String("snapshot_id", snap.ID.String()),
		zap.String("entity_id", snap.EntityID),
	)
	a := alert.New(snap.UserID, alert.KindIntegrity, alert.SeverityCritical,
		fmt.Sprintf("snapshot %s failed checksum verification", snap.ID),
		map[string]any{
			"snapshot_id": snap.ID,
			"entity_id":   snap.EntityID,
			"platform":    snap.Platform,
			"version":     snap.Version,
		})
	if saveErr := s.alerts.Save(ctx, a); saveErr != nil {
		s.logger.Error("failed to save integrity alert", zap.Error(saveErr))
	}
	return shared.ErrIntegrityViolation
}

// CreateRestorePoint snapshots every tracked entity's latest state under a
// single name.
func (s *Service) CreateRestorePoint(ctx context.Context, userID uuid.UUID, name string) (*snapshot.RestorePoint, error) {
	refs, err := s.snapshots.ListTrackedEntities(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshotIDs := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		latest, err := s.snapshots.FindLatest(ctx, userID, ref.EntityID, ref.Platform)
		if errors.Is(err, snapshot.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshotIDs = append(snapshotIDs, latest.ID)
	}

	rp, err := snapshot.NewRestorePoint(userID, name, snapshotIDs)
	if err != nil {
		return nil, err
	}
	if err := s.restorePoints.Save(ctx, rp); err != nil {
		return nil, err
	}

	s.logger.Info("restore point created",
		zap.String("restore_point_id", rp.ID.String()),
		zap.String("name", name),
		zap.Int("snapshots", len(snapshotIDs)),
	)
	return rp, nil
}

// GetRestorePoint loads a restore point by ID.
func (s *Service) GetRestorePoint(ctx context.Context, id uuid.UUID) (*snapshot.RestorePoint, error) {
	return s.restorePoints.FindByID(ctx, id)
}

// ListRestorePoints lists a user's restore points.
func (s *Service) ListRestorePoints(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RestorePoint, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.restorePoints.List(ctx, userID, page, pageSize)
}

// GetSnapshot loads a snapshot by ID.
func (s *Service) GetSnapshot(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	return s.snapshots.FindByID(ctx, id)
}
