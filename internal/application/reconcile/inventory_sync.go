package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appaudit "github.com/syncbridge/backend/internal/application/audit"
	"github.com/syncbridge/backend/internal/application/runner"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"go.uber.org/zap"
)

// InventorySyncer aligns stock quantities for already-mapped products.
// Deltas within the threshold are skipped to avoid no-op remote writes;
// a full sync writes regardless.
type InventorySyncer struct {
	connectors platform.Registry
	mappings   mapping.Repository
	tracker    *appaudit.Tracker
	gate       Gate
	logger     *zap.Logger
}

// NewInventorySyncer creates an inventory syncer.
func NewInventorySyncer(
	connectors platform.Registry,
	mappings mapping.Repository,
	tracker *appaudit.Tracker,
	gate Gate,
	logger *zap.Logger,
) *InventorySyncer {
	return &InventorySyncer{
		connectors: connectors,
		mappings:   mappings,
		tracker:    tracker,
		gate:       gate,
		logger:     logger,
	}
}

// SyncLeg syncs inventory levels along one source-to-target flow.
func (s *InventorySyncer) SyncLeg(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, opts SyncOptions) legReport {
	var report legReport

	source, err := s.connectors.Get(leg.Source)
	if err != nil {
		report.abort(itemScope(leg, "connector"), err)
		return report
	}
	target, err := s.connectors.Get(leg.Target)
	if err != nil {
		report.abort(itemScope(leg, "connector"), err)
		return report
	}

	query := platform.ListQuery{IDs: opts.IDs, UpdatedSince: opts.UpdatedSince}
	levels, err := callPlatform(ctx, s.gate, userID, leg.Source, func(ctx context.Context) ([]platform.InventoryLevel, error) {
		return source.ListInventory(ctx, userID, query)
	})
	if err != nil {
		report.abort(itemScope(leg, "list_inventory"), err)
		return report
	}

	updates := 0
	results := runner.RunBatched(ctx, levels, opts.Concurrency, func(ctx context.Context, level platform.InventoryLevel) (bool, error) {
		return s.syncLevel(ctx, userID, leg, target, level, opts)
	})
	for i, res := range results {
		if res.Err != nil {
			report.failure(levels[i].ProductID, res.Err)
			continue
		}
		if res.Value {
			updates++
		}
		report.success()
	}

	s.logger.Info("inventory leg finished",
		zap.String("user_id", userID.String()),
		zap.String("source", leg.Source.String()),
		zap.String("target", leg.Target.String()),
		zap.Int("processed", report.processed),
		zap.Int("quantity_updates", updates),
		zap.Int("failed", report.failed),
	)
	return report
}

// syncLevel reports whether a remote write happened.
func (s *InventorySyncer) syncLevel(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, target platform.Connector, level platform.InventoryLevel, opts SyncOptions) (bool, error) {
	m, err := s.mappings.FindBySource(ctx, userID, mapping.KindItem, leg.Source, level.ProductID)
	if errors.Is(err, mapping.ErrMappingNotFound) {
		return false, fmt.Errorf("product %s has no mapping, run a product sync first", level.ProductID)
	}
	if err != nil {
		return false, err
	}
	if !m.HasTarget() {
		return false, fmt.Errorf("product %s is mapped but has no counterpart yet", level.ProductID)
	}

	targetLevels, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) ([]platform.InventoryLevel, error) {
		return target.ListInventory(ctx, userID, platform.ListQuery{IDs: []string{m.TargetID}})
	})
	if err != nil {
		return false, err
	}
	currentQty := decimal.Zero
	if len(targetLevels) > 0 {
		currentQty = targetLevels[0].Quantity
	}

	delta := level.Quantity.Sub(currentQty)
	if !opts.FullSync && delta.Abs().LessThanOrEqual(opts.Threshold) {
		s.logger.Debug("inventory delta within threshold, skipping write",
			zap.String("product_id", level.ProductID),
			zap.String("delta", delta.String()),
			zap.String("threshold", opts.Threshold.String()),
		)
		return false, nil
	}

	if _, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, target.SetInventoryLevel(ctx, userID, m.TargetID, level.Quantity)
	}); err != nil {
		return false, err
	}

	if _, err := s.tracker.LogChange(ctx, userID, appaudit.Change{
		EntityType: string(mapping.KindItem),
		EntityID:   m.TargetID,
		Platform:   leg.Target,
		Operation:  audit.OperationUpdate,
		FieldName:  "quantity",
		OldValue:   currentQty.String(),
		NewValue:   level.Quantity.String(),
		Source:     audit.SourceSync,
	}); err != nil {
		return true, err
	}
	return true, nil
}
