// Package reconcile drives sync passes between the storefront and the ERP:
// products, inventory levels, and orders, in either or both directions.
package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/reconcile"
)

// SyncOptions narrows and tunes one sync run.
type SyncOptions struct {
	// IDs restricts the run to explicit source-system IDs
	IDs []string
	// UpdatedSince restricts the run to records changed after the cursor
	UpdatedSince *time.Time
	// FullSync disables the inventory threshold skip
	FullSync bool
	// Threshold is the inventory delta below which no remote write happens
	Threshold decimal.Decimal
	// Concurrency bounds in-flight items per chunk
	Concurrency int
}

// legReport accumulates one leg's counts and item errors.
type legReport struct {
	processed int
	succeeded int
	failed    int
	errs      []reconcile.ItemError
}

func (r *legReport) success() {
	r.processed++
	r.succeeded++
}

func (r *legReport) failure(itemID string, err error) {
	r.processed++
	r.failed++
	r.errs = append(r.errs, reconcile.ItemError{ItemID: itemID, Message: err.Error()})
}

// abort records a leg-level failure that prevented any items from running.
func (r *legReport) abort(scope string, err error) {
	r.failed++
	r.errs = append(r.errs, reconcile.ItemError{ItemID: scope, Message: err.Error()})
}

func (r *legReport) record(l *reconcile.SyncLog) {
	l.Record(r.processed, r.succeeded, r.failed, r.errs)
}

func itemScope(leg reconcile.Leg, operation string) string {
	return fmt.Sprintf("%s:%s", leg.Source, operation)
}
