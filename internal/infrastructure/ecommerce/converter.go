package ecommerce

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FixedRateConverter converts currencies through a static rate table.
// Rates are keyed "FROM/TO"; the inverse is derived when only one side
// is configured.
type FixedRateConverter struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// NewFixedRateConverter creates an empty converter.
func NewFixedRateConverter() *FixedRateConverter {
	return &FixedRateConverter{rates: make(map[string]decimal.Decimal)}
}

// SetRate sets the conversion rate from one currency to another.
func (c *FixedRateConverter) SetRate(from, to string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[from+"/"+to] = rate
}

// Convert converts an amount between currencies. Same-currency amounts
// pass through unchanged.
func (c *FixedRateConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rate, ok := c.rates[from+"/"+to]; ok {
		return amount.Mul(rate), nil
	}
	if inverse, ok := c.rates[to+"/"+from]; ok && !inverse.IsZero() {
		return amount.Div(inverse), nil
	}
	return decimal.Zero, fmt.Errorf("no conversion rate configured for %s to %s", from, to)
}
