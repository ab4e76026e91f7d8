package reconcile

import (
	"context"

	"github.com/google/uuid"
	appaudit "github.com/syncbridge/backend/internal/application/audit"
	"github.com/syncbridge/backend/internal/application/runner"
	appsnapshot "github.com/syncbridge/backend/internal/application/snapshot"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// ProductSyncer pushes catalog records from one platform to the other.
// The entity mapping decides create versus update: an unbound mapping
// means the counterpart does not exist yet and is created exactly once;
// a bound mapping always updates in place.
type ProductSyncer struct {
	connectors platform.Registry
	mappings   mapping.Repository
	snapshots  *appsnapshot.Service
	tracker    *appaudit.Tracker
	gate       Gate
	logger     *zap.Logger
}

// NewProductSyncer creates a product syncer.
func NewProductSyncer(
	connectors platform.Registry,
	mappings mapping.Repository,
	snapshot *appsnapshot.Service,
	tracker *appaudit.Tracker,
	gate Gate,
	logger *zap.Logger,
) *ProductSyncer {
	return &ProductSyncer{
		connectors: connectors,
		mappings:   mappings,
		snapshots:  snapshot,
		tracker:    tracker,
		gate:       gate,
		logger:     logger,
	}
}

// SyncLeg syncs products along one source-to-target flow.
func (s *ProductSyncer) SyncLeg(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, opts SyncOptions) legReport {
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
	products, err := callPlatform(ctx, s.gate, userID, leg.Source, func(ctx context.Context) ([]platform.Product, error) {
		return source.ListProducts(ctx, userID, query)
	})
	if err != nil {
		report.abort(itemScope(leg, "list_products"), err)
		return report
	}

	results := runner.RunBatched(ctx, products, opts.Concurrency, func(ctx context.Context, p platform.Product) (struct{}, error) {
		return struct{}{}, s.syncProduct(ctx, userID, leg, target, p)
	})
	for i, res := range results {
		if res.Err != nil {
			report.failure(products[i].ID, res.Err)
			continue
		}
		report.success()
	}

	s.logger.Info("product leg finished",
		zap.String("user_id", userID.String()),
		zap.String("source", leg.Source.String()),
		zap.String("target", leg.Target.String()),
		zap.Int("processed", report.processed),
		zap.Int("failed", report.failed),
	)
	return report
}

func (s *ProductSyncer) syncProduct(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, target platform.Connector, p platform.Product) error {
	m, err := s.mappings.FindOrCreate(ctx, userID, mapping.KindItem, leg.Source, p.ID)
	if err != nil {
		return err
	}

	if m.HasTarget() {
		err = s.updateExisting(ctx, userID, leg, target, m, p)
	} else {
		err = s.createCounterpart(ctx, userID, leg, target, m, p)
	}

	if err != nil {
		m.MarkFailed(err.Error())
		if saveErr := s.mappings.Save(ctx, m); saveErr != nil {
			s.logger.Error("failed to persist mapping failure", zap.Error(saveErr))
		}
		return err
	}

	m.MarkCompleted()
	return s.mappings.Save(ctx, m)
}

// updateExisting captures a pre-sync snapshot of the target record, then
// writes only the fields that actually differ.
func (s *ProductSyncer) updateExisting(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, target platform.Connector, m *mapping.EntityMapping, p platform.Product) error {
	current, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (*platform.Product, error) {
		return target.GetProduct(ctx, userID, m.TargetID)
	})
	if err != nil {
		return err
	}

	currentFields := current.Fields()
	desiredFields := p.Fields()

	diff, changed := audit.Diff(currentFields, desiredFields)
	if !changed {
		return nil
	}

	ref := snapshot.EntityRef{EntityID: m.TargetID, Platform: leg.Target, Kind: mapping.KindItem}
	if _, err := s.snapshots.Capture(ctx, userID, ref, snapshot.TypePreSync, currentFields); err != nil {
		return err
	}

	update := make(map[string]any, len(diff))
	for field := range diff {
		update[field] = desiredFields[field]
	}
	if _, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, target.UpdateProduct(ctx, userID, m.TargetID, update)
	}); err != nil {
		return err
	}

	changes := make([]appaudit.Change, 0, len(diff))
	for field := range diff {
		changes = append(changes, appaudit.Change{
			EntityType: string(mapping.KindItem),
			EntityID:   m.TargetID,
			Platform:   leg.Target,
			Operation:  audit.OperationUpdate,
			FieldName:  field,
			OldValue:   currentFields[field],
			NewValue:   desiredFields[field],
			Source:     audit.SourceSync,
		})
	}
	if _, err := s.tracker.LogBatch(ctx, userID, changes); err != nil {
		return err
	}
	return nil
}

func (s *ProductSyncer) createCounterpart(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, target platform.Connector, m *mapping.EntityMapping, p platform.Product) error {
	targetID, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (string, error) {
		return target.CreateProduct(ctx, userID, p)
	})
	if err != nil {
		return err
	}

	if err := s.mappings.BindTarget(ctx, m.ID, targetID); err != nil {
		return err
	}
	m.TargetID = targetID

	_, err = s.tracker.LogChange(ctx, userID, appaudit.Change{
		EntityType: string(mapping.KindItem),
		EntityID:   targetID,
		Platform:   leg.Target,
		Operation:  audit.OperationCreate,
		NewValue:   p.Fields(),
		Source:     audit.SourceSync,
	})
	return err
}
