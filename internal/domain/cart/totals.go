// internal/domain/cart/totals.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/pkg/money"
)

// Subtotal is the sum of the line totals
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		total = total.Add(c.Items[i].LineTotal())
	}
	return money.Round(total)
}

// activeCoupon returns the cart coupon when it currently applies to this cart
func (c *Cart) activeCoupon(now time.Time) *coupon.Coupon {
	if c.Coupon == nil {
		return nil
	}
	if !c.Coupon.IsValid(now) || !c.Coupon.IsApplicableToCustomerType(c.CustomerType) {
		return nil
	}
	if !c.Coupon.MeetsMinimum(c.Subtotal()) {
		return nil
	}
	return c.Coupon
}

// ActiveCoupon exposes the applicable coupon, nil when none applies
func (c *Cart) ActiveCoupon(now time.Time) *coupon.Coupon {
	return c.activeCoupon(now)
}

// DiscountAmount is the coupon discount, zero without an applicable coupon
func (c *Cart) DiscountAmount(now time.Time) decimal.Decimal {
	cp := c.activeCoupon(now)
	if cp == nil {
		return decimal.Zero
	}
	return cp.DiscountFor(c.Subtotal())
}

// FreeShipping reports whether an applicable coupon waives shipping
func (c *Cart) FreeShipping(now time.Time) bool {
	cp := c.activeCoupon(now)
	return cp != nil && cp.GrantsFreeShipping()
}

// TotalAfterDiscount is the subtotal minus the discount, never negative
func (c *Cart) TotalAfterDiscount(now time.Time) decimal.Decimal {
	return money.NonNegative(c.Subtotal().Sub(c.DiscountAmount(now)))
}

// ShippingCost is the flat rate unless the cart is empty, shipping is waived
// by a coupon, or the discounted total reaches the free shipping threshold.
func (c *Cart) ShippingCost(now time.Time) decimal.Decimal {
	if len(c.Items) == 0 || c.FreeShipping(now) {
		return decimal.Zero
	}
	if c.TotalAfterDiscount(now).GreaterThanOrEqual(money.FreeShippingThreshold) {
		return decimal.Zero
	}
	return money.FlatShippingCost
}

// GrandTotal is the discounted total plus shipping. Tax is added at checkout.
func (c *Cart) GrandTotal(now time.Time) decimal.Decimal {
	return c.TotalAfterDiscount(now).Add(c.ShippingCost(now))
}

// TotalWeight is the total weight of the cart in grams
func (c *Cart) TotalWeight() int {
	weight := 0
	for i := range c.Items {
		weight += c.Items[i].LineWeight()
	}
	return weight
}

// TotalSavings sums the tier savings captured on the lines
func (c *Cart) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Items {
		if c.Items[i].SavingsAtAdd.Valid {
			total = total.Add(c.Items[i].SavingsAtAdd.Decimal)
		}
	}
	return total
}

// ItemCount is the total number of units in the cart
func (c *Cart) ItemCount() int {
	count := 0
	for i := range c.Items {
		count += c.Items[i].Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// IsExpired reports whether the cart is past its expiry
func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Lifetime returns how long the cart lives after its last activity
func (c *Cart) Lifetime() time.Duration {
	if c.Owner.IsUser() {
		return UserCartLifetime
	}
	return GuestCartLifetime
}

// TouchActivity records activity and pushes the expiry forward
func (c *Cart) TouchActivity(now time.Time) {
	c.LastActivityAt = now
	c.ExpiresAt = now.Add(c.Lifetime())
}

// AttachToUser hands the cart over to a user, dropping the guest token and
// extending the expiry to the user lifetime.
func (c *Cart) AttachToUser(userID uint, now time.Time) {
	c.Owner = UserOwner(userID)
	c.TouchActivity(now)
}

// FindItemByVariant returns the line holding the variant, if any
func (c *Cart) FindItemByVariant(variantID uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].VariantID != nil && *c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// FindItem returns the line with the given id, if any
func (c *Cart) FindItem(itemID uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// Summary computes the priced view of the cart at now
func (c *Cart) Summary(now time.Time) Summary {
	s := Summary{
		CartID:             c.ID,
		Currency:           c.Currency,
		CustomerType:       c.CustomerType,
		Items:              c.Items,
		ItemCount:          c.ItemCount(),
		TotalWeight:        c.TotalWeight(),
		Subtotal:           c.Subtotal(),
		DiscountAmount:     c.DiscountAmount(now),
		TotalAfterDiscount: c.TotalAfterDiscount(now),
		ShippingCost:       c.ShippingCost(now),
		FreeShipping:       c.FreeShipping(now),
		GrandTotal:         c.GrandTotal(now),
		TotalSavings:       c.TotalSavings(),
		ExpiresAt:          c.ExpiresAt,
	}
	if s.Items == nil {
		s.Items = []CartItem{}
	}
	if c.Coupon != nil {
		s.CouponCode = c.Coupon.Code
	}
	return s
}
