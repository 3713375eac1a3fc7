// internal/domain/coupon/evaluator.go
package coupon

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/money"
)

// IsValid reports whether the coupon can be redeemed at now: inside its
// validity window, not exhausted, active and not soft-deleted.
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive || c.DeletedAt.Valid {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	if c.MaxUsages != nil && c.UsageCount >= *c.MaxUsages {
		return false
	}
	return true
}

// CanUserUse reports whether a user with priorUsages redemptions may use it again
func (c *Coupon) CanUserUse(priorUsages int) bool {
	return c.MaxUsagesPerUser == nil || priorUsages < *c.MaxUsagesPerUser
}

// IsApplicableToCustomerType checks the customer type allow-list. An empty list allows everyone.
func (c *Coupon) IsApplicableToCustomerType(t product.CustomerType) bool {
	if len(c.AllowedCustomerTypes) == 0 {
		return true
	}
	return slices.Contains(c.AllowedCustomerTypes, t)
}

// MeetsMinimum reports whether subtotal reaches the minimum order amount
func (c *Coupon) MeetsMinimum(subtotal decimal.Decimal) bool {
	if !c.MinimumAmount.Valid {
		return true
	}
	return subtotal.GreaterThanOrEqual(c.MinimumAmount.Decimal)
}

// DiscountFor computes the discount on subtotal. It never exceeds subtotal.
// Free shipping coupons return zero; the waiver is reported by GrantsFreeShipping.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !c.MeetsMinimum(subtotal) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		discount = subtotal.Mul(c.Value)
		if c.MaximumDiscount.Valid {
			discount = money.Min(discount, c.MaximumDiscount.Decimal)
		}
	case TypeFixedAmount:
		discount = c.Value
	default:
		return decimal.Zero
	}

	discount = money.Min(money.NonNegative(discount), subtotal)
	return money.Round(discount)
}

// GrantsFreeShipping reports whether the coupon waives shipping
func (c *Coupon) GrantsFreeShipping() bool {
	return c.Type == TypeFreeShipping
}
