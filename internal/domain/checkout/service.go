// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"github.com/your-org/storefront-backend/internal/pkg/money"
	"gorm.io/gorm"
)

// maxReferenceAttempts bounds the retries on an order reference collision
const maxReferenceAttempts = 5

// Service handles checkout business logic
type Service struct {
	db      *gorm.DB
	coupons *coupon.Service
	logger  *logrus.Logger
	now     func() time.Time
}

// NewService creates a new checkout service
func NewService(db *gorm.DB, coupons *coupon.Service, logger *logrus.Logger) *Service {
	return &Service{
		db:      db,
		coupons: coupons,
		logger:  logger,
		now:     time.Now,
	}
}

// Request represents a checkout request
type Request struct {
	ShippingAddress order.Address  `json:"shipping_address"`
	BillingAddress  *order.Address `json:"billing_address,omitempty"`
	Email           string         `json:"email" binding:"omitempty,email"` // guest checkout contact
	CustomerMessage string         `json:"customer_message" binding:"max=1000"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validation represents a checkout preflight result
type Validation struct {
	IsValid bool              `json:"is_valid"`
	Errors  []*apperror.Error `json:"errors,omitempty"`
	Summary *cart.Summary     `json:"summary,omitempty"`
}

// Validate runs every checkout precondition against the cart and reports all
// failures instead of stopping at the first one.
func (s *Service) Validate(ctx context.Context, cartID uint) (*Validation, error) {
	c, err := cart.Load(s.db.WithContext(ctx), cartID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	issues, err := inspect(s.db.WithContext(ctx), c)
	if err != nil {
		return nil, err
	}

	summary := c.Summary(now)
	return &Validation{
		IsValid: len(issues) == 0,
		Errors:  issues,
		Summary: &summary,
	}, nil
}

// CreateFromCart converts a cart into a pending order. The order, its items,
// the initial history record, the coupon redemption and the cart clearing
// are written in one transaction.
func (s *Service) CreateFromCart(ctx context.Context, cartID uint, req Request) (*order.Order, error) {
	if req.ShippingAddress.IsZero() {
		return nil, apperror.New(apperror.CodeValidation, "shipping address is required")
	}
	billing := req.ShippingAddress
	if req.BillingAddress != nil && !req.BillingAddress.IsZero() {
		billing = *req.BillingAddress
	}

	now := s.now().UTC()
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	c, err := cart.LoadForUpdate(tx, cartID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	issues, err := inspect(tx, c)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(issues) > 0 {
		tx.Rollback()
		return nil, issues[0]
	}

	reference, err := uniqueReference(tx, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	customer, err := s.customerSnapshot(tx, c, req.Email)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	active := c.ActiveCoupon(now)
	if active != nil {
		if err := s.checkCouponStillUsable(ctx, tx, c, active); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	subtotal := c.Subtotal()
	discount := c.DiscountAmount(now)
	shipping := c.ShippingCost(now)
	taxable := money.NonNegative(subtotal.Sub(discount))
	taxRate := money.DefaultTaxRate
	taxAmount := money.Round(taxable.Mul(taxRate))
	grandTotal := taxable.Add(taxAmount).Add(shipping)

	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["cart_id"] = c.ID

	o := &order.Order{
		Reference:        reference,
		SiteID:           c.SiteID,
		UserID:           c.Owner.UserIDPtr(),
		Currency:         c.Currency,
		Locale:           c.Locale,
		CustomerType:     c.CustomerType,
		Status:           order.OrderStatusPending,
		Subtotal:         subtotal,
		DiscountAmount:   discount,
		TaxRate:          taxRate,
		TaxAmount:        taxAmount,
		ShippingCost:     shipping,
		GrandTotal:       grandTotal,
		ShippingAddress:  req.ShippingAddress,
		BillingAddress:   billing,
		CustomerSnapshot: customer,
		CustomerMessage:  req.CustomerMessage,
		Metadata:         metadata,
		Items:            buildItems(c.Items, subtotal, taxRate, taxAmount),
	}
	if active != nil {
		snapshot := active.Snapshot()
		o.AppliedCoupon = &snapshot
		o.CouponID = &active.ID
	}

	if err := tx.Create(o).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if active != nil {
		recorded, err := s.coupons.WithTx(tx).RecordUsage(ctx, active, o.UserID, o.ID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !recorded {
			// Exhausted since the cart was priced; the cart now prices without it
			tx.Rollback()
			return nil, apperror.ErrCouponNotApplicable.With("code", active.Code).With("reason", "exhausted")
		}
	}

	history := order.OrderStatusHistory{
		OrderID:       o.ID,
		FromStatus:    "",
		ToStatus:      order.OrderStatusPending,
		ChangedByType: order.ActorSystem,
		Reason:        "Order placed",
		CreatedAt:     now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}
	o.StatusHistory = []order.OrderStatusHistory{history}

	if err := cart.Empty(tx, c, now); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":    o.ID,
		"reference":   o.Reference,
		"cart_id":     c.ID,
		"grand_total": o.GrandTotal.StringFixed(2),
		"currency":    o.Currency,
	}).Info("Order created from cart")

	return o, nil
}

// inspect checks the checkout preconditions. Failures are grouped by kind in
// precedence order: unorderable items, then unpriceable items, then price drift.
func inspect(db *gorm.DB, c *cart.Cart) ([]*apperror.Error, error) {
	if c.IsEmpty() {
		return []*apperror.Error{apperror.ErrEmptyCart.With("cart_id", c.ID)}, nil
	}

	variants := make(map[uint]*product.Variant, len(c.Items))
	var notOrderable, unpriced, drifted []*apperror.Error

	for i := range c.Items {
		item := &c.Items[i]
		if item.VariantID == nil {
			notOrderable = append(notOrderable, notOrderableError(item, "variant removed"))
			continue
		}

		variant, err := product.LoadVariant(db, *item.VariantID)
		if err != nil {
			if apperror.CodeOf(err) == apperror.CodeNotFound {
				notOrderable = append(notOrderable, notOrderableError(item, "variant removed"))
				continue
			}
			return nil, err
		}

		switch {
		case !variant.IsAvailable():
			notOrderable = append(notOrderable, notOrderableError(item, "variant unavailable"))
		case variant.Stock < item.Quantity:
			notOrderable = append(notOrderable, notOrderableError(item, "insufficient stock").With("available", variant.Stock))
		default:
			variants[item.ID] = variant
		}
	}

	for i := range c.Items {
		item := &c.Items[i]
		variant, ok := variants[item.ID]
		if !ok {
			continue
		}

		current, ok := variant.PriceFor(c.Currency, c.CustomerType, item.Quantity)
		if !ok {
			unpriced = append(unpriced, apperror.ErrPriceUnavailable.
				With("item_id", item.ID).
				With("sku", item.ProductSnapshot.SKU))
			continue
		}
		if money.DriftExceeds(item.PriceAtAdd, current) {
			drifted = append(drifted, apperror.ErrPriceChanged.
				With("item_id", item.ID).
				With("sku", item.ProductSnapshot.SKU).
				With("price_at_add", item.PriceAtAdd.StringFixed(2)).
				With("current_price", current.StringFixed(2)))
		}
	}

	issues := append(notOrderable, unpriced...)
	return append(issues, drifted...), nil
}

func notOrderableError(item *cart.CartItem, reason string) *apperror.Error {
	name := item.ProductSnapshot.ProductName
	if item.ProductSnapshot.VariantName != "" {
		name = name + " - " + item.ProductSnapshot.VariantName
	}
	return apperror.New(apperror.CodeItemNotOrderable, "%s cannot be ordered: %s", name, reason).
		With("item_id", item.ID).
		With("sku", item.ProductSnapshot.SKU).
		With("reason", reason)
}

func uniqueReference(tx *gorm.DB, now time.Time) (string, error) {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		reference := order.GenerateReference(now)
		exists, err := order.ReferenceExists(tx, reference)
		if err != nil {
			return "", err
		}
		if !exists {
			return reference, nil
		}
	}
	return "", apperror.New(apperror.CodeConflict, "could not allocate a unique order reference")
}

func (s *Service) customerSnapshot(tx *gorm.DB, c *cart.Cart, email string) (user.CustomerSnapshot, error) {
	userID, ok := c.Owner.UserID()
	if !ok {
		snapshot := user.GuestSnapshot(c.CustomerType)
		snapshot.Email = email
		return snapshot, nil
	}

	u, err := user.Load(tx, userID)
	if err != nil {
		return user.CustomerSnapshot{}, err
	}
	snapshot := u.Snapshot()
	snapshot.CustomerType = c.CustomerType
	return snapshot, nil
}

// checkCouponStillUsable repeats the per-customer coupon checks made when the
// coupon was applied, since orders may have been placed in between.
func (s *Service) checkCouponStillUsable(ctx context.Context, tx *gorm.DB, c *cart.Cart, cp *coupon.Coupon) error {
	userID, ok := c.Owner.UserID()
	if !ok {
		if cp.FirstOrderOnly {
			return apperror.ErrCouponNotApplicable.With("code", cp.Code).With("reason", "first_order_only")
		}
		return nil
	}

	if cp.FirstOrderOnly {
		placed, err := order.HasPlacedOrders(tx, c.SiteID, userID)
		if err != nil {
			return err
		}
		if placed {
			return apperror.ErrCouponNotApplicable.With("code", cp.Code).With("reason", "first_order_only")
		}
	}

	if cp.MaxUsagesPerUser != nil {
		used, err := s.coupons.WithTx(tx).UsageCountForUser(ctx, cp.ID, userID)
		if err != nil {
			return err
		}
		if !cp.CanUserUse(used) {
			return apperror.ErrCouponNotApplicable.With("code", cp.Code).With("reason", "per_user_limit")
		}
	}
	return nil
}

// buildItems copies the cart lines verbatim and spreads the order tax over
// them in proportion to their line totals. The last line absorbs rounding so
// the shares add up to the order tax.
func buildItems(lines []cart.CartItem, subtotal, taxRate, taxAmount decimal.Decimal) []order.OrderItem {
	items := make([]order.OrderItem, 0, len(lines))
	allocated := decimal.Zero

	for i, line := range lines {
		lineTotal := money.Round(line.LineTotal())

		share := decimal.Zero
		switch {
		case i == len(lines)-1:
			share = taxAmount.Sub(allocated)
		case subtotal.IsPositive():
			share = money.Round(taxAmount.Mul(lineTotal).Div(subtotal))
		}
		allocated = allocated.Add(share)

		items = append(items, order.OrderItem{
			VariantID:       line.VariantID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       line.PriceAtAdd,
			TaxRate:         taxRate,
			TaxAmount:       share,
			LineTotal:       lineTotal,
			SavingsAmount:   line.SavingsAtAdd,
			ProductSnapshot: line.ProductSnapshot,
			CustomMessage:   line.CustomMessage,
		})
	}
	return items
}
