package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	appaudit "github.com/syncbridge/backend/internal/application/audit"
	"github.com/syncbridge/backend/internal/application/runner"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"go.uber.org/zap"
)

// OrderSyncer copies orders to the counterpart platform. Orders are
// immutable once placed: a bound mapping means the order is already over
// there and the item is a no-op. The customer mapping is always resolved
// before the order itself, and monetary amounts are converted to the
// target platform's currency.
type OrderSyncer struct {
	connectors platform.Registry
	mappings   mapping.Repository
	converter  platform.CurrencyConverter
	tracker    *appaudit.Tracker
	gate       Gate
	// currencies is the operating currency per platform
	currencies map[platform.Code]string
	logger     *zap.Logger
}

// NewOrderSyncer creates an order syncer.
func NewOrderSyncer(
	connectors platform.Registry,
	mappings mapping.Repository,
	converter platform.CurrencyConverter,
	tracker *appaudit.Tracker,
	gate Gate,
	currencies map[platform.Code]string,
	logger *zap.Logger,
) *OrderSyncer {
	return &OrderSyncer{
		connectors: connectors,
		mappings:   mappings,
		converter:  converter,
		tracker:    tracker,
		gate:       gate,
		currencies: currencies,
		logger:     logger,
	}
}

// SyncLeg syncs orders along one source-to-target flow.
func (s *OrderSyncer) SyncLeg(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, opts SyncOptions) legReport {
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
	orders, err := callPlatform(ctx, s.gate, userID, leg.Source, func(ctx context.Context) ([]platform.Order, error) {
		return source.ListOrders(ctx, userID, query)
	})
	if err != nil {
		report.abort(itemScope(leg, "list_orders"), err)
		return report
	}

	results := runner.RunBatched(ctx, orders, opts.Concurrency, func(ctx context.Context, o platform.Order) (struct{}, error) {
		return struct{}{}, s.syncOrder(ctx, userID, leg, source, target, o)
	})
	for i, res := range results {
		if res.Err != nil {
			report.failure(orders[i].ID, res.Err)
			continue
		}
		report.success()
	}

	s.logger.Info("order leg finished",
		zap.String("user_id", userID.String()),
		zap.String("source", leg.Source.String()),
		zap.String("target", leg.Target.String()),
		zap.Int("processed", report.processed),
		zap.Int("failed", report.failed),
	)
	return report
}

func (s *OrderSyncer) syncOrder(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, source, target platform.Connector, o platform.Order) error {
	m, err := s.mappings.FindOrCreate(ctx, userID, mapping.KindOrder, leg.Source, o.ID)
	if err != nil {
		return err
	}
	if m.HasTarget() {
		// Already placed on the counterpart; orders never update.
		return nil
	}

	customerID, err := s.resolveCustomer(ctx, userID, leg, source, target, o.CustomerID)
	if err != nil {
		m.MarkFailed(err.Error())
		if saveErr := s.mappings.Save(ctx, m); saveErr != nil {
			s.logger.Error("failed to persist mapping failure", zap.Error(saveErr))
		}
		return err
	}

	converted, err := s.convertOrder(ctx, leg, o, customerID)
	if err != nil {
		m.MarkFailed(err.Error())
		if saveErr := s.mappings.Save(ctx, m); saveErr != nil {
			s.logger.Error("failed to persist mapping failure", zap.Error(saveErr))
		}
		return err
	}

	targetID, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (string, error) {
		return target.CreateOrder(ctx, userID, converted)
	})
	if err != nil {
		m.MarkFailed(err.Error())
		if saveErr := s.mappings.Save(ctx, m); saveErr != nil {
			s.logger.Error("failed to persist mapping failure", zap.Error(saveErr))
		}
		return err
	}

	if err := s.mappings.BindTarget(ctx, m.ID, targetID); err != nil {
		return err
	}
	m.TargetID = targetID
	m.MarkCompleted()
	if err := s.mappings.Save(ctx, m); err != nil {
		return err
	}

	_, err = s.tracker.LogChange(ctx, userID, appaudit.Change{
		EntityType: string(mapping.KindOrder),
		EntityID:   targetID,
		Platform:   leg.Target,
		Operation:  audit.OperationCreate,
		NewValue: map[string]any{
			"source_order_id": o.ID,
			"currency":        converted.Currency,
			"total":           converted.Total.String(),
			"lines":           len(converted.Lines),
		},
		Source: audit.SourceSync,
	})
	return err
}

// resolveCustomer guarantees the order's customer exists on the target
// before the order is created, creating and binding the counterpart on
// first encounter.
func (s *OrderSyncer) resolveCustomer(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, source, target platform.Connector, sourceCustomerID string) (string, error) {
	if sourceCustomerID == "" {
		return "", fmt.Errorf("order has no customer")
	}

	cm, err := s.mappings.FindOrCreate(ctx, userID, mapping.KindCustomer, leg.Source, sourceCustomerID)
	if err != nil {
		return "", err
	}
	if cm.HasTarget() {
		return cm.TargetID, nil
	}

	customer, err := callPlatform(ctx, s.gate, userID, leg.Source, func(ctx context.Context) (*platform.Customer, error) {
		return source.GetCustomer(ctx, userID, sourceCustomerID)
	})
	if err != nil {
		return "", err
	}

	targetCustomerID, err := callPlatform(ctx, s.gate, userID, leg.Target, func(ctx context.Context) (string, error) {
		return target.CreateCustomer(ctx, userID, *customer)
	})
	if err != nil {
		return "", err
	}

	if err := s.mappings.BindTarget(ctx, cm.ID, targetCustomerID); err != nil {
		return "", err
	}
	cm.TargetID = targetCustomerID
	cm.MarkCompleted()
	if err := s.mappings.Save(ctx, cm); err != nil {
		return "", err
	}
	return targetCustomerID, nil
}

// convertOrder rebuilds the order for the target platform, converting
// monetary amounts into its operating currency.
func (s *OrderSyncer) convertOrder(ctx context.Context, leg reconcile.Leg, o platform.Order, targetCustomerID string) (platform.Order, error) {
	converted := platform.Order{
		ID:         o.ID,
		CustomerID: targetCustomerID,
		Currency:   o.Currency,
		Total:      o.Total,
		Lines:      make([]platform.OrderLine, len(o.Lines)),
		CreatedAt:  o.CreatedAt,
	}
	copy(converted.Lines, o.Lines)

	targetCurrency, ok := s.currencies[leg.Target]
	if !ok || targetCurrency == o.Currency {
		return converted, nil
	}

	total, err := s.converter.Convert(ctx, o.Total, o.Currency, targetCurrency)
	if err != nil {
		return platform.Order{}, fmt.Errorf("convert order total: %w", err)
	}
	converted.Total = total
	converted.Currency = targetCurrency

	for i, line := range o.Lines {
		unitPrice, err := s.converter.Convert(ctx, line.UnitPrice, o.Currency, targetCurrency)
		if err != nil {
			return platform.Order{}, fmt.Errorf("convert line price: %w", err)
		}
		converted.Lines[i].UnitPrice = unitPrice
	}
	return converted, nil
}
