// internal/pkg/money/money.go
package money

import (
	"github.com/shopspring/decimal"
)

// Business thresholds. Fixed in code, not configuration.
var (
	// PriceDriftTolerance is the relative change allowed between a cart line's
	// snapshot price and the current catalog price at checkout.
	PriceDriftTolerance = decimal.RequireFromString("0.05")

	// FreeShippingThreshold is the discounted cart total from which shipping is free.
	FreeShippingThreshold = decimal.NewFromInt(50)

	// FlatShippingCost is charged below the free shipping threshold.
	FlatShippingCost = decimal.RequireFromString("5.90")

	// DefaultTaxRate is the single tax rate applied to every order.
	DefaultTaxRate = decimal.RequireFromString("0.20")
)

// Round rounds an amount to two decimal places, half away from zero
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative clamps d at zero
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// DriftExceeds reports whether current differs from snapshot by more than the
// tolerance. A zero snapshot drifts whenever current is non-zero.
func DriftExceeds(snapshot, current decimal.Decimal) bool {
	if snapshot.IsZero() {
		return !current.IsZero()
	}
	drift := current.Sub(snapshot).Abs().Div(snapshot.Abs())
	return drift.GreaterThan(PriceDriftTolerance)
}
