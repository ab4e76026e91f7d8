package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"go.uber.org/zap"
)

// Restorer writes snapshot payloads back to the platforms during a
// rollback. It is the reconciler's side of the rollback engine's restorer
// port, so restores flow through the same gate as sync writes.
type Restorer struct {
	connectors platform.Registry
	gate       Gate
	logger     *zap.Logger
}

// NewRestorer creates a snapshot restorer.
func NewRestorer(connectors platform.Registry, gate Gate, logger *zap.Logger) *Restorer {
	return &Restorer{connectors: connectors, gate: gate, logger: logger}
}

// Restore pushes a snapshot's captured state back to the owning platform.
// Only item snapshots are restorable; orders and customers are immutable
// on both platforms.
func (r *Restorer) Restore(ctx context.Context, userID uuid.UUID, snap *snapshot.Snapshot) error {
	if snap.Kind != mapping.KindItem {
		return fmt.Errorf("entities of kind %s cannot be restored", snap.Kind)
	}

	connector, err := r.connectors.Get(snap.Platform)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := json.Unmarshal(snap.Data, &fields); err != nil {
		return fmt.Errorf("decode snapshot payload: %w", err)
	}

	quantity, hasQuantity := fields["quantity"]
	delete(fields, "quantity")

	if _, err := callPlatform(ctx, r.gate, userID, snap.Platform, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, connector.UpdateProduct(ctx, userID, snap.EntityID, fields)
	}); err != nil {
		return err
	}

	if hasQuantity {
		qty, err := decimal.NewFromString(fmt.Sprintf("%v", quantity))
		if err != nil {
			return fmt.Errorf("decode snapshot quantity: %w", err)
		}
		if _, err := callPlatform(ctx, r.gate, userID, snap.Platform, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, connector.SetInventoryLevel(ctx, userID, snap.EntityID, qty)
		}); err != nil {
			return err
		}
	}

	r.logger.Debug("entity restored from snapshot",
		zap.String("entity_id", snap.EntityID),
		zap.String("platform", snap.Platform.String()),
		zap.Int("version", snap.Version),
	)
	return nil
}
