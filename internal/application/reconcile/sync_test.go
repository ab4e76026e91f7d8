package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var nsToShopify = reconcile.Leg{Source: platform.CodeNetSuite, Target: platform.CodeShopify}

func seedWidget(f *syncFixture, quantity string) string {
	return f.netsuite.SeedProduct(f.userID, platform.Product{
		SKU:      "WIDGET-1",
		Name:     "Widget",
		Price:    mustDecimal("19.99"),
		Currency: "USD",
		Quantity: mustDecimal(quantity),
		Active:   true,
	})
}

func TestProductSync_CreatesCounterpartOnce(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	srcID := seedWidget(f, "100")

	report := f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})

	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("CreateProduct"))

	m, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindItem, platform.CodeNetSuite, srcID)
	require.NoError(t, err)
	assert.True(t, m.HasTarget())
	assert.Equal(t, mapping.StatusCompleted, m.Status)

	created, ok := f.shopify.ProductByID(f.userID, m.TargetID)
	require.True(t, ok)
	assert.Equal(t, "WIDGET-1", created.SKU)

	// A second pass with an unchanged source must not create again, and
	// an identical record needs no update either.
	report = f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("CreateProduct"))
	assert.Equal(t, 0, f.shopify.CallCount("UpdateProduct"))
	assert.Equal(t, 0, f.snapshots.count())
}

func TestProductSync_UpdatesChangedFieldsOnly(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	srcID := seedWidget(f, "100")

	report := f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)

	f.netsuite.SeedProduct(f.userID, platform.Product{
		ID:       srcID,
		SKU:      "WIDGET-1",
		Name:     "Widget Deluxe",
		Price:    mustDecimal("19.99"),
		Currency: "USD",
		Quantity: mustDecimal("100"),
		Active:   true,
	})

	report = f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("UpdateProduct"))

	m, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindItem, platform.CodeNetSuite, srcID)
	require.NoError(t, err)
	updated, ok := f.shopify.ProductByID(f.userID, m.TargetID)
	require.True(t, ok)
	assert.Equal(t, "Widget Deluxe", updated.Name)
	assert.Equal(t, "WIDGET-1", updated.SKU)

	// The pre-write snapshot captures the target's prior state.
	snap, err := f.snapshots.FindLatest(ctx, f.userID, m.TargetID, platform.CodeShopify)
	require.NoError(t, err)
	assert.Contains(t, string(snap.Data), "Widget")

	entries := f.audits.byField("name")
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OperationUpdate, entries[0].Operation)
	assert.JSONEq(t, `"Widget"`, string(entries[0].OldValue))
	assert.JSONEq(t, `"Widget Deluxe"`, string(entries[0].NewValue))
}

func TestInventorySync_SkipsDeltaWithinThreshold(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	srcID := seedWidget(f, "100")

	report := f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)

	m, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindItem, platform.CodeNetSuite, srcID)
	require.NoError(t, err)

	// Drift the target to 97: a delta of 3 sits inside a threshold of 5.
	f.shopify.SeedProduct(f.userID, platform.Product{
		ID:       m.TargetID,
		SKU:      "WIDGET-1",
		Name:     "Widget",
		Price:    mustDecimal("19.99"),
		Currency: "USD",
		Quantity: mustDecimal("97"),
		Active:   true,
	})

	opts := SyncOptions{Threshold: mustDecimal("5")}
	report = f.inventory.SyncLeg(ctx, f.userID, nsToShopify, opts)
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 0, f.shopify.CallCount("SetInventoryLevel"))

	// Dropping the source to 80 pushes the delta past the threshold.
	f.netsuite.SeedProduct(f.userID, platform.Product{
		ID:       srcID,
		SKU:      "WIDGET-1",
		Name:     "Widget",
		Price:    mustDecimal("19.99"),
		Currency: "USD",
		Quantity: mustDecimal("80"),
		Active:   true,
	})

	report = f.inventory.SyncLeg(ctx, f.userID, nsToShopify, opts)
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("SetInventoryLevel"))

	after, ok := f.shopify.ProductByID(f.userID, m.TargetID)
	require.True(t, ok)
	assert.True(t, after.Quantity.Equal(mustDecimal("80")))

	entries := f.audits.byField("quantity")
	require.Len(t, entries, 1)
	assert.JSONEq(t, `"97"`, string(entries[0].OldValue))
	assert.JSONEq(t, `"80"`, string(entries[0].NewValue))
}

func TestInventorySync_FullSyncWritesInsideThreshold(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	srcID := seedWidget(f, "100")

	report := f.products.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)

	m, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindItem, platform.CodeNetSuite, srcID)
	require.NoError(t, err)
	f.shopify.SeedProduct(f.userID, platform.Product{
		ID:       m.TargetID,
		SKU:      "WIDGET-1",
		Quantity: mustDecimal("97"),
		Price:    mustDecimal("19.99"),
	})

	opts := SyncOptions{Threshold: mustDecimal("5"), FullSync: true}
	report = f.inventory.SyncLeg(ctx, f.userID, nsToShopify, opts)
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("SetInventoryLevel"))
}

func TestInventorySync_RequiresProductMapping(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	seedWidget(f, "50")

	report := f.inventory.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})

	assert.Equal(t, 1, report.failed)
	require.Len(t, report.errs, 1)
	assert.Contains(t, report.errs[0].Message, "product sync")
	assert.Equal(t, 0, f.shopify.CallCount("SetInventoryLevel"))
}

func TestOrderSync_ResolvesCustomerBeforeOrder(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	custID := f.netsuite.SeedCustomer(f.userID, platform.Customer{
		Email: "jo@example.com",
		Name:  "Jo Doe",
	})
	orderID := f.netsuite.SeedOrder(f.userID, platform.Order{
		CustomerID: custID,
		Currency:   "USD",
		Total:      mustDecimal("100"),
		Lines: []platform.OrderLine{
			{SKU: "WIDGET-1", Quantity: mustDecimal("2"), UnitPrice: mustDecimal("50")},
		},
	})

	report := f.orders.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded, "errors: %v", report.errs)

	assert.Equal(t, 1, f.shopify.CallCount("CreateCustomer"))
	assert.Equal(t, 1, f.shopify.CallCount("CreateOrder"))

	cm, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindCustomer, platform.CodeNetSuite, custID)
	require.NoError(t, err)
	assert.True(t, cm.HasTarget())

	om, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindOrder, platform.CodeNetSuite, orderID)
	require.NoError(t, err)
	created, ok := f.shopify.OrderByID(f.userID, om.TargetID)
	require.True(t, ok)
	assert.Equal(t, cm.TargetID, created.CustomerID)

	// Orders are immutable once placed; a second pass is a no-op.
	report = f.orders.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded)
	assert.Equal(t, 1, f.shopify.CallCount("CreateOrder"))
	assert.Equal(t, 1, f.shopify.CallCount("CreateCustomer"))
}

func TestOrderSync_ConvertsCurrency(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	custID := f.netsuite.SeedCustomer(f.userID, platform.Customer{Email: "jo@example.com"})
	orderID := f.netsuite.SeedOrder(f.userID, platform.Order{
		CustomerID: custID,
		Currency:   "USD",
		Total:      mustDecimal("100"),
		Lines: []platform.OrderLine{
			{SKU: "WIDGET-1", Quantity: mustDecimal("2"), UnitPrice: mustDecimal("50")},
		},
	})

	report := f.orders.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})
	require.Equal(t, 1, report.succeeded, "errors: %v", report.errs)

	om, err := f.mappings.FindBySource(ctx, f.userID, mapping.KindOrder, platform.CodeNetSuite, orderID)
	require.NoError(t, err)
	created, ok := f.shopify.OrderByID(f.userID, om.TargetID)
	require.True(t, ok)

	assert.Equal(t, "EUR", created.Currency)
	assert.True(t, created.Total.Equal(mustDecimal("50")), "total was %s", created.Total)
	require.Len(t, created.Lines, 1)
	assert.True(t, created.Lines[0].UnitPrice.Equal(mustDecimal("25")))
}

func TestOrderSync_FailsOrderWithoutCustomer(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.netsuite.SeedOrder(f.userID, platform.Order{
		Currency: "USD",
		Total:    mustDecimal("10"),
	})

	report := f.orders.SyncLeg(ctx, f.userID, nsToShopify, SyncOptions{})

	assert.Equal(t, 1, report.failed)
	assert.Equal(t, 0, f.shopify.CallCount("CreateOrder"))
}

// stubLeg returns a canned report, exercising orchestration without real
// platform traffic.
type stubLeg struct {
	report legReport
}

func (s stubLeg) SyncLeg(ctx context.Context, userID uuid.UUID, leg reconcile.Leg, opts SyncOptions) legReport {
	return s.report
}

func TestSyncService_RejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	logs := newMemSyncLogRepo()
	userID := uuid.New()

	running, err := reconcile.NewSyncLog(userID, reconcile.DirectionNetSuiteToShopify, reconcile.DataTypes{Products: true})
	require.NoError(t, err)
	require.NoError(t, logs.Create(ctx, running))

	svc := NewSyncService(logs, stubLeg{}, stubLeg{}, stubLeg{}, zap.NewNop())
	_, err = svc.Run(ctx, userID, RunRequest{
		Direction: reconcile.DirectionNetSuiteToShopify,
		DataTypes: reconcile.DataTypes{Products: true},
	})

	assert.ErrorIs(t, err, shared.ErrSyncAlreadyRunning)

	// A different user is unaffected.
	_, err = svc.Run(ctx, uuid.New(), RunRequest{
		Direction: reconcile.DirectionNetSuiteToShopify,
		DataTypes: reconcile.DataTypes{Products: true},
	})
	assert.NoError(t, err)
}

func TestSyncService_AggregatesLegReports(t *testing.T) {
	ctx := context.Background()
	logs := newMemSyncLogRepo()
	userID := uuid.New()

	products := stubLeg{report: legReport{processed: 5, succeeded: 4, failed: 1,
		errs: []reconcile.ItemError{{ItemID: "prod-9", Message: "boom"}}}}
	inventory := stubLeg{report: legReport{processed: 3, succeeded: 3}}

	svc := NewSyncService(logs, products, inventory, stubLeg{}, zap.NewNop())
	result, err := svc.Run(ctx, userID, RunRequest{
		Direction: reconcile.DirectionBidirectional,
		DataTypes: reconcile.DataTypes{Products: true, Inventory: true},
	})
	require.NoError(t, err)

	// Two legs, each running both data types.
	assert.Equal(t, reconcile.RunStatusPartialSuccess, result.Status)
	assert.Equal(t, 16, result.ItemsProcessed)
	assert.Equal(t, 14, result.ItemsSucceeded)
	assert.Equal(t, 2, result.ItemsFailed)
	assert.Len(t, result.Errors, 2)

	// The run released the single-flight lock.
	_, err = logs.FindRunning(ctx, userID)
	assert.ErrorIs(t, err, reconcile.ErrSyncLogNotFound)

	stored, err := svc.GetRun(ctx, result.SyncLogID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.RunStatusPartialSuccess, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestSyncService_RejectsEmptyDataTypes(t *testing.T) {
	svc := NewSyncService(newMemSyncLogRepo(), stubLeg{}, stubLeg{}, stubLeg{}, zap.NewNop())
	_, err := svc.Run(context.Background(), uuid.New(), RunRequest{
		Direction: reconcile.DirectionNetSuiteToShopify,
	})
	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_INPUT", domainErr.Code)
}
