// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles cart business logic
type Service struct {
	db      *gorm.DB
	coupons *coupon.Service
	logger  *logrus.Logger
	now     func() time.Time
}

// NewService creates a new cart service
func NewService(db *gorm.DB, coupons *coupon.Service, logger *logrus.Logger) *Service {
	return &Service{
		db:      db,
		coupons: coupons,
		logger:  logger,
		now:     time.Now,
	}
}

// AddItemRequest represents add to cart request
type AddItemRequest struct {
	VariantID     uint   `json:"variant_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required"`
	CustomMessage string `json:"custom_message" binding:"max=500"`
}

// UpdateItemRequest represents update cart item request
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// ApplyCouponRequest represents apply coupon request
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required,max=50"`
}

// Now returns the service clock
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// GetOrCreate returns the cart of the context owner, creating it when none
// exists. An expired cart is deleted and replaced.
func (s *Service) GetOrCreate(ctx context.Context, cc CartContext) (*Cart, error) {
	if cc.CustomerType == "" {
		cc.CustomerType = product.CustomerTypeB2C
	}
	if !cc.CustomerType.IsValid() {
		return nil, apperror.New(apperror.CodeValidation, "unknown customer type %q", cc.CustomerType)
	}
	if cc.Currency == "" {
		return nil, apperror.New(apperror.CodeValidation, "currency is required")
	}
	if cc.Owner.IsZero() {
		cc.Owner = GuestOwner(uuid.NewString())
	}

	now := s.Now()
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

	existing, err := findByOwner(tx, cc.SiteID, cc.Owner)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		tx.Rollback()
		return nil, err
	}

	if existing != nil {
		if !existing.IsExpired(now) {
			if err := tx.Commit().Error; err != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", err)
			}
			return existing, nil
		}
		if err := deleteCart(tx, existing.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"cart_id":    existing.ID,
			"expires_at": existing.ExpiresAt,
		}).Info("Expired cart replaced")
	}

	cart := &Cart{
		SiteID:       cc.SiteID,
		Owner:        cc.Owner,
		Currency:     cc.Currency,
		CustomerType: cc.CustomerType,
		Locale:       cc.Locale,
		Items:        []CartItem{},
	}
	cart.TouchActivity(now)

	if err := tx.Create(cart).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return cart, nil
}

// FindForOwner returns the live cart of an owner without creating one
func (s *Service) FindForOwner(ctx context.Context, siteID uint, owner Owner) (*Cart, error) {
	if owner.IsZero() {
		return nil, apperror.NotFound("cart", "")
	}
	cart, err := findByOwner(s.db.WithContext(ctx), siteID, owner)
	if err != nil {
		return nil, err
	}
	if cart.IsExpired(s.Now()) {
		if err := s.deleteExpired(ctx, cart.ID); err != nil {
			return nil, err
		}
		return nil, apperror.NotFound("cart", cart.ID)
	}
	return cart, nil
}

// Get retrieves a cart, checking that owner holds it
func (s *Service) Get(ctx context.Context, cartID uint, owner Owner) (*Cart, error) {
	cart, err := loadCart(s.db.WithContext(ctx), cartID)
	if err != nil {
		return nil, err
	}
	if cart.Owner != owner {
		return nil, apperror.ErrAccessDenied.With("cart_id", cartID)
	}
	if cart.IsExpired(s.Now()) {
		if err := s.deleteExpired(ctx, cart.ID); err != nil {
			return nil, err
		}
		return nil, apperror.NotFound("cart", cartID)
	}
	return cart, nil
}

// AddItem adds quantity units of a variant to the cart. A variant already in
// the cart has its quantity summed and is re-priced at the new quantity.
func (s *Service) AddItem(ctx context.Context, cartID, variantID uint, quantity int, customMessage string) (*CartItem, error) {
	if quantity < 1 {
		return nil, apperror.ErrInvalidQuantity.With("quantity", quantity)
	}

	var added CartItem
	err := s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		item, err := addItem(tx, cart, variantID, quantity, customMessage)
		if err != nil {
			return err
		}
		added = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateItemQuantity sets the quantity of a line and re-prices it against the
// current catalog.
func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, itemID uint, quantity int) (*CartItem, error) {
	if quantity < 1 {
		return nil, apperror.ErrInvalidQuantity.With("quantity", quantity)
	}

	var updated CartItem
	err := s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		item := cart.FindItem(itemID)
		if item == nil {
			return apperror.NotFound("cart item", itemID)
		}
		if item.VariantID == nil {
			return apperror.ErrVariantUnavailable.With("item_id", itemID)
		}

		variant, err := product.LoadVariant(tx, *item.VariantID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.ErrVariantUnavailable.With("item_id", itemID)
			}
			return err
		}
		if err := priceLine(cart, variant, item, quantity); err != nil {
			return err
		}

		if err := tx.Save(item).Error; err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}
		updated = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemoveItem deletes a line from the cart
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uint) error {
	return s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		item := cart.FindItem(itemID)
		if item == nil {
			return apperror.NotFound("cart item", itemID)
		}
		if err := tx.Delete(&CartItem{}, item.ID).Error; err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		removeItem(cart, item.ID)
		return nil
	})
}

// Clear removes every line and the coupon from the cart
func (s *Service) Clear(ctx context.Context, cartID uint) error {
	return s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		return Empty(tx, cart, s.Now())
	})
}

// ApplyCoupon attaches a coupon to the cart after checking that this cart
// and its owner may use it. A minimum amount is not checked here: the
// discount stays zero until the subtotal reaches it.
func (s *Service) ApplyCoupon(ctx context.Context, cartID uint, code string) (*Cart, error) {
	var result *Cart
	err := s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		cp, err := s.coupons.WithTx(tx).FindByCode(ctx, cart.SiteID, code)
		if err != nil {
			return err
		}
		if err := s.checkCoupon(ctx, tx, cart, cp); err != nil {
			return err
		}

		if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Update("coupon_id", cp.ID).Error; err != nil {
			return fmt.Errorf("failed to apply coupon: %w", err)
		}
		cart.CouponID = &cp.ID
		cart.Coupon = cp
		result = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveCoupon detaches the coupon from the cart
func (s *Service) RemoveCoupon(ctx context.Context, cartID uint) (*Cart, error) {
	var result *Cart
	err := s.inTx(ctx, cartID, func(tx *gorm.DB, cart *Cart) error {
		if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Update("coupon_id", nil).Error; err != nil {
			return fmt.Errorf("failed to remove coupon: %w", err)
		}
		cart.CouponID = nil
		cart.Coupon = nil
		result = cart
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) checkCoupon(ctx context.Context, tx *gorm.DB, cart *Cart, cp *coupon.Coupon) error {
	notApplicable := func(reason string) error {
		return apperror.ErrCouponNotApplicable.With("code", cp.Code).With("reason", reason)
	}

	if !cp.IsValid(s.Now()) {
		return notApplicable("invalid")
	}
	if !cp.IsApplicableToCustomerType(cart.CustomerType) {
		return notApplicable("customer_type")
	}

	userID, isUser := cart.Owner.UserID()
	if cp.FirstOrderOnly {
		// Guests cannot prove they never ordered
		if !isUser {
			return notApplicable("first_order_only")
		}
		placed, err := order.HasPlacedOrders(tx, cart.SiteID, userID)
		if err != nil {
			return err
		}
		if placed {
			return notApplicable("first_order_only")
		}
	}

	if isUser && cp.MaxUsagesPerUser != nil {
		used, err := s.coupons.WithTx(tx).UsageCountForUser(ctx, cp.ID, userID)
		if err != nil {
			return err
		}
		if !cp.CanUserUse(used) {
			return notApplicable("per_user_limit")
		}
	}

	return nil
}

// MergeGuestCart moves a guest cart to a user at login. Without a user cart
// the guest cart is handed over; otherwise every guest line is added to the
// user cart with the usual stock and price rules and the guest cart is
// deleted. Any failure leaves both carts untouched. A nil cart is returned
// when there was no guest cart to merge.
func (s *Service) MergeGuestCart(ctx context.Context, siteID uint, guestToken string, userID uint) (*Cart, error) {
	guestOwner := GuestOwner(guestToken)
	userOwner := UserOwner(userID)
	if guestOwner.IsZero() {
		return nil, nil
	}
	if userOwner.IsZero() {
		return nil, apperror.ErrInvalidOwner
	}

	now := s.Now()
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

	guest, err := findByOwner(forUpdate(tx), siteID, guestOwner)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if guest.IsExpired(now) {
		if err := deleteCart(tx, guest.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, nil
	}

	target, err := findByOwner(forUpdate(tx), siteID, userOwner)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		tx.Rollback()
		return nil, err
	}
	if target != nil && target.IsExpired(now) {
		if err := deleteCart(tx, target.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		target = nil
	}

	if target == nil {
		guest.AttachToUser(userID, now)
		if err := tx.Model(&Cart{}).Where("id = ?", guest.ID).Updates(map[string]any{
			"owner":            guest.Owner,
			"last_activity_at": guest.LastActivityAt,
			"expires_at":       guest.ExpiresAt,
			"updated_at":       now,
		}).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to attach cart to user: %w", err)
		}
		if guest.Coupon != nil {
			keep, err := s.couponCarriesOver(ctx, tx, guest, guest.Coupon)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			if !keep {
				if err := tx.Model(&Cart{}).Where("id = ?", guest.ID).Update("coupon_id", nil).Error; err != nil {
					tx.Rollback()
					return nil, fmt.Errorf("failed to detach coupon: %w", err)
				}
				guest.CouponID = nil
				guest.Coupon = nil
			}
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return guest, nil
	}

	for _, line := range guest.Items {
		if line.VariantID == nil {
			s.logger.WithFields(logrus.Fields{
				"cart_id": guest.ID,
				"item_id": line.ID,
			}).Warn("Skipping guest cart line without variant")
			continue
		}
		if _, err := addItem(tx, target, *line.VariantID, line.Quantity, line.CustomMessage); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	carry := false
	if target.CouponID == nil && guest.Coupon != nil {
		carry, err = s.couponCarriesOver(ctx, tx, target, guest.Coupon)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if carry {
		if err := tx.Model(&Cart{}).Where("id = ?", target.ID).Update("coupon_id", *guest.CouponID).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to carry coupon over: %w", err)
		}
		target.CouponID = guest.CouponID
		target.Coupon = guest.Coupon
	}

	if err := deleteCart(tx, guest.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := touch(tx, target, now); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"guest_cart_id": guest.ID,
		"cart_id":       target.ID,
		"user_id":       userID,
	}).Info("Guest cart merged")

	return target, nil
}

// couponCarriesOver reports whether cp may stay on cart once it belongs to
// its new owner. A rejection is not an error: the coupon is just dropped.
func (s *Service) couponCarriesOver(ctx context.Context, tx *gorm.DB, cart *Cart, cp *coupon.Coupon) (bool, error) {
	err := s.checkCoupon(ctx, tx, cart, cp)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, apperror.ErrCouponNotApplicable) {
		return false, err
	}
	s.logger.WithFields(logrus.Fields{
		"cart_id": cart.ID,
		"code":    cp.Code,
	}).Info("Guest coupon dropped at merge")
	return false, nil
}

// SweepExpired deletes carts past their expiry in batches and returns the
// number of carts removed.
func (s *Service) SweepExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var ids []uint
		if err := s.db.WithContext(ctx).Model(&Cart{}).
			Where("expires_at < ?", now).
			Order("id ASC").
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, fmt.Errorf("failed to select expired carts: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}

		var deleted int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// A cart touched since the select is no longer expired and keeps its lines
			var expired []uint
			if err := forUpdate(tx).Model(&Cart{}).
				Where("id IN ? AND expires_at < ?", ids, now).
				Pluck("id", &expired).Error; err != nil {
				return fmt.Errorf("failed to lock expired carts: %w", err)
			}
			if len(expired) == 0 {
				return nil
			}

			if err := tx.Where("cart_id IN ?", expired).Delete(&CartItem{}).Error; err != nil {
				return fmt.Errorf("failed to delete expired cart items: %w", err)
			}
			result := tx.Where("id IN ?", expired).Delete(&Cart{})
			if result.Error != nil {
				return fmt.Errorf("failed to delete expired carts: %w", result.Error)
			}
			deleted = result.RowsAffected
			return nil
		})
		if err != nil {
			return total, err
		}
		total += deleted

		if len(ids) < batchSize {
			return total, nil
		}
	}
}

// inTx loads and locks the cart inside a transaction, runs fn and records
// activity
func (s *Service) inTx(ctx context.Context, cartID uint, fn func(tx *gorm.DB, cart *Cart) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	cart, err := loadCart(forUpdate(tx), cartID)
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := fn(tx, cart); err != nil {
		tx.Rollback()
		return err
	}

	if err := touch(tx, cart, s.Now()); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) deleteExpired(ctx context.Context, cartID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteCart(tx, cartID)
	})
}

// Empty deletes the lines of a cart, detaches its coupon and records
// activity, on the caller's transaction. Lines already gone mean another
// writer consumed the cart after it was loaded.
func Empty(tx *gorm.DB, cart *Cart, now time.Time) error {
	result := tx.Where("cart_id = ?", cart.ID).Delete(&CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to clear cart items: %w", result.Error)
	}
	if result.RowsAffected != int64(len(cart.Items)) {
		return apperror.ErrConflict.
			With("cart_id", cart.ID).
			With("expected_items", len(cart.Items)).
			With("deleted_items", result.RowsAffected)
	}
	if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Update("coupon_id", nil).Error; err != nil {
		return fmt.Errorf("failed to detach coupon: %w", err)
	}
	cart.Items = []CartItem{}
	cart.CouponID = nil
	cart.Coupon = nil
	return touch(tx, cart, now)
}

// Load retrieves a cart with its lines and coupon on the given handle
func Load(db *gorm.DB, cartID uint) (*Cart, error) {
	return loadCart(db, cartID)
}

// LoadForUpdate is Load with the cart row locked until tx ends
func LoadForUpdate(tx *gorm.DB, cartID uint) (*Cart, error) {
	return loadCart(forUpdate(tx), cartID)
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadCart(db *gorm.DB, cartID uint) (*Cart, error) {
	var cart Cart
	result := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Preload("Coupon").Where("id = ?", cartID).First(&cart)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("cart", cartID)
		}
		return nil, fmt.Errorf("failed to retrieve cart: %w", result.Error)
	}
	return &cart, nil
}

func findByOwner(db *gorm.DB, siteID uint, owner Owner) (*Cart, error) {
	var cart Cart
	result := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Preload("Coupon").Where("site_id = ? AND owner = ?", siteID, owner.String()).First(&cart)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("cart", owner.Kind())
		}
		return nil, fmt.Errorf("failed to retrieve cart: %w", result.Error)
	}
	return &cart, nil
}

func deleteCart(tx *gorm.DB, cartID uint) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	if err := tx.Delete(&Cart{}, cartID).Error; err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func touch(tx *gorm.DB, cart *Cart, now time.Time) error {
	cart.TouchActivity(now)
	if err := tx.Model(&Cart{}).Where("id = ?", cart.ID).Updates(map[string]any{
		"last_activity_at": cart.LastActivityAt,
		"expires_at":       cart.ExpiresAt,
		"updated_at":       now,
	}).Error; err != nil {
		return fmt.Errorf("failed to record cart activity: %w", err)
	}
	return nil
}

// addItem applies the add-to-cart rules to cart on tx
func addItem(tx *gorm.DB, cart *Cart, variantID uint, quantity int, customMessage string) (*CartItem, error) {
	if quantity < 1 {
		return nil, apperror.ErrInvalidQuantity.With("quantity", quantity)
	}

	variant, err := product.LoadVariant(tx, variantID)
	if err != nil {
		return nil, err
	}

	if existing := cart.FindItemByVariant(variantID); existing != nil {
		if err := priceLine(cart, variant, existing, existing.Quantity+quantity); err != nil {
			return nil, err
		}
		if customMessage != "" {
			existing.CustomMessage = customMessage
		}
		if err := tx.Save(existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
		return existing, nil
	}

	id := variant.ID
	item := CartItem{
		CartID:          cart.ID,
		VariantID:       &id,
		ProductID:       variant.ProductID,
		ProductSnapshot: variant.Snapshot(),
		CustomMessage:   customMessage,
	}
	if err := priceLine(cart, variant, &item, quantity); err != nil {
		return nil, err
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	cart.Items = append(cart.Items, item)
	return &cart.Items[len(cart.Items)-1], nil
}

// priceLine checks availability and stock for quantity and sets the line
// quantity, price and savings from the current catalog.
func priceLine(cart *Cart, variant *product.Variant, item *CartItem, quantity int) error {
	if !variant.IsAvailable() {
		return apperror.ErrVariantUnavailable.With("variant_id", variant.ID)
	}
	if variant.Stock < quantity {
		return apperror.ErrInsufficientStock.
			With("variant_id", variant.ID).
			With("available", variant.Stock).
			With("requested", quantity)
	}

	price, ok := variant.PriceFor(cart.Currency, cart.CustomerType, quantity)
	if !ok {
		return apperror.ErrPriceUnavailable.
			With("variant_id", variant.ID).
			With("currency", cart.Currency).
			With("customer_type", cart.CustomerType)
	}

	item.Quantity = quantity
	item.PriceAtAdd = price
	item.SavingsAtAdd = variant.SavingsFor(cart.Currency, cart.CustomerType, quantity)
	return nil
}

func removeItem(cart *Cart, itemID uint) {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return
		}
	}
}
