package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"github.com/your-org/storefront-backend/internal/testutil"
	"gorm.io/gorm"
)

type cartFixture struct {
	db      *gorm.DB
	service *Service
	coupons *coupon.Service
	clock   time.Time
	product product.Product
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	db := testutil.NewDB(t,
		&product.Product{}, &product.Variant{},
		&coupon.Coupon{}, &coupon.Usage{},
		&Cart{}, &CartItem{},
		&order.Order{}, &order.OrderItem{}, &order.OrderStatusHistory{},
	)

	p := product.Product{SiteID: 1, Name: "Fountain pen", Slug: "fountain-pen", IsActive: true}
	require.NoError(t, db.Create(&p).Error)

	f := &cartFixture{db: db, clock: fixedNow, product: p}
	f.coupons = coupon.NewService(db)
	f.service = NewService(db, f.coupons, logger.Discard())
	f.service.now = func() time.Time { return f.clock }
	return f
}

func (f *cartFixture) variant(t *testing.T, sku string, stock int, entry product.PriceEntry) *product.Variant {
	t.Helper()
	v := product.Variant{
		ProductID: f.product.ID,
		SKU:       sku,
		Name:      sku,
		Stock:     stock,
		Weight:    120,
		IsActive:  true,
		Prices:    product.PriceTable{}.Set("EUR", product.CustomerTypeB2C, entry),
	}
	require.NoError(t, f.db.Create(&v).Error)
	return &v
}

func (f *cartFixture) tiered(t *testing.T, sku string, stock int) *product.Variant {
	return f.variant(t, sku, stock, product.Tiered(
		product.PriceTier{MinQuantity: 1, Price: dec("10.00")},
		product.PriceTier{MinQuantity: 10, Price: dec("8.00")},
	))
}

func (f *cartFixture) cart(t *testing.T, owner Owner) *Cart {
	t.Helper()
	c, err := f.service.GetOrCreate(context.Background(), CartContext{
		SiteID: 1, Owner: owner, Currency: "EUR", CustomerType: product.CustomerTypeB2C, Locale: "fr",
	})
	require.NoError(t, err)
	return c
}

func (f *cartFixture) reload(t *testing.T, cartID uint) *Cart {
	t.Helper()
	c, err := Load(f.db, cartID)
	require.NoError(t, err)
	return c
}

func TestGetOrCreateGeneratesGuestToken(t *testing.T) {
	f := newCartFixture(t)

	c := f.cart(t, Owner{})
	token, ok := c.Owner.GuestToken()
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.Equal(t, fixedNow.Add(GuestCartLifetime), c.ExpiresAt)

	again := f.cart(t, GuestOwner(token))
	assert.Equal(t, c.ID, again.ID)
}

func TestGetOrCreateReplacesExpiredCart(t *testing.T) {
	f := newCartFixture(t)
	v := f.tiered(t, "PEN-BLUE", 20)

	c := f.cart(t, UserOwner(42))
	_, err := f.service.AddItem(context.Background(), c.ID, v.ID, 1, "")
	require.NoError(t, err)

	f.clock = fixedNow.Add(31 * 24 * time.Hour)
	fresh := f.cart(t, UserOwner(42))
	assert.Empty(t, fresh.Items)
	assert.Equal(t, f.clock.Add(UserCartLifetime), fresh.ExpiresAt)

	var items int64
	require.NoError(t, f.db.Model(&CartItem{}).Count(&items).Error)
	assert.Zero(t, items)
}

func TestGetChecksOwnership(t *testing.T) {
	f := newCartFixture(t)
	c := f.cart(t, UserOwner(1))

	_, err := f.service.Get(context.Background(), c.ID, UserOwner(2))
	assert.ErrorIs(t, err, apperror.ErrAccessDenied)

	got, err := f.service.Get(context.Background(), c.ID, UserOwner(1))
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.service.Get(context.Background(), 999, UserOwner(1))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAddItemCreatesSnapshotLine(t *testing.T) {
	f := newCartFixture(t)
	v := f.tiered(t, "PEN-BLUE", 20)
	c := f.cart(t, UserOwner(42))

	f.clock = fixedNow.Add(time.Hour)
	item, err := f.service.AddItem(context.Background(), c.ID, v.ID, 2, "Happy birthday")
	require.NoError(t, err)

	assert.Equal(t, 2, item.Quantity)
	assert.True(t, dec("10.00").Equal(item.PriceAtAdd))
	assert.False(t, item.SavingsAtAdd.Valid)
	assert.Equal(t, "PEN-BLUE", item.ProductSnapshot.SKU)
	assert.Equal(t, "Fountain pen", item.ProductSnapshot.ProductName)
	assert.Equal(t, "Happy birthday", item.CustomMessage)

	reloaded := f.reload(t, c.ID)
	assert.Len(t, reloaded.Items, 1)
	assert.Equal(t, f.clock.Add(UserCartLifetime), reloaded.ExpiresAt.UTC())
}

func TestAddExistingVariantSumsAndReprices(t *testing.T) {
	f := newCartFixture(t)
	v := f.tiered(t, "PEN-BLUE", 20)
	c := f.cart(t, UserOwner(42))

	_, err := f.service.AddItem(context.Background(), c.ID, v.ID, 5, "")
	require.NoError(t, err)
	item, err := f.service.AddItem(context.Background(), c.ID, v.ID, 5, "")
	require.NoError(t, err)

	assert.Equal(t, 10, item.Quantity)
	assert.True(t, dec("8.00").Equal(item.PriceAtAdd))
	require.True(t, item.SavingsAtAdd.Valid)
	assert.True(t, dec("20.00").Equal(item.SavingsAtAdd.Decimal))

	reloaded := f.reload(t, c.ID)
	require.Len(t, reloaded.Items, 1)
	assert.True(t, dec("80.00").Equal(reloaded.Subtotal()))
}

func TestAddItemFailures(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 3)
	c := f.cart(t, UserOwner(42))

	_, err := f.service.AddItem(ctx, c.ID, v.ID, 0, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidQuantity)

	_, err = f.service.AddItem(ctx, c.ID, 999, 1, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.service.AddItem(ctx, c.ID, v.ID, 4, "")
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = f.service.AddItem(ctx, c.ID, v.ID, 2, "")
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, c.ID, v.ID, 2, "")
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock, "summed quantity is checked")

	inactive := f.tiered(t, "PEN-RED", 10)
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)
	_, err = f.service.AddItem(ctx, c.ID, inactive.ID, 1, "")
	assert.ErrorIs(t, err, apperror.ErrVariantUnavailable)

	deleted := f.tiered(t, "PEN-GREEN", 10)
	require.NoError(t, f.db.Delete(deleted).Error)
	_, err = f.service.AddItem(ctx, c.ID, deleted.ID, 1, "")
	assert.ErrorIs(t, err, apperror.ErrVariantUnavailable)

	usd, err := f.service.GetOrCreate(ctx, CartContext{SiteID: 1, Owner: UserOwner(7), Currency: "USD"})
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, usd.ID, v.ID, 1, "")
	assert.ErrorIs(t, err, apperror.ErrPriceUnavailable)

	reloaded := f.reload(t, c.ID)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, 2, reloaded.Items[0].Quantity)
}

func TestUpdateItemQuantity(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 12)
	c := f.cart(t, UserOwner(42))

	item, err := f.service.AddItem(ctx, c.ID, v.ID, 1, "")
	require.NoError(t, err)

	updated, err := f.service.UpdateItemQuantity(ctx, c.ID, item.ID, 10)
	require.NoError(t, err)
	assert.True(t, dec("8.00").Equal(updated.PriceAtAdd))
	assert.True(t, updated.SavingsAtAdd.Valid)

	updated, err = f.service.UpdateItemQuantity(ctx, c.ID, item.ID, 2)
	require.NoError(t, err)
	assert.True(t, dec("10.00").Equal(updated.PriceAtAdd))
	assert.False(t, updated.SavingsAtAdd.Valid)

	_, err = f.service.UpdateItemQuantity(ctx, c.ID, item.ID, 0)
	assert.ErrorIs(t, err, apperror.ErrInvalidQuantity)

	_, err = f.service.UpdateItemQuantity(ctx, c.ID, item.ID, 13)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	_, err = f.service.UpdateItemQuantity(ctx, c.ID, 999, 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, f.db.Delete(v).Error)
	_, err = f.service.UpdateItemQuantity(ctx, c.ID, item.ID, 1)
	assert.ErrorIs(t, err, apperror.ErrVariantUnavailable)
}

func TestRemoveItemAndClear(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	blue := f.tiered(t, "PEN-BLUE", 10)
	red := f.tiered(t, "PEN-RED", 10)
	c := f.cart(t, GuestOwner("guest-token"))

	first, err := f.service.AddItem(ctx, c.ID, blue.ID, 1, "")
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, c.ID, red.ID, 1, "")
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveItem(ctx, c.ID, first.ID))
	assert.Len(t, f.reload(t, c.ID).Items, 1)
	assert.ErrorIs(t, f.service.RemoveItem(ctx, c.ID, first.ID), apperror.ErrNotFound)

	require.NoError(t, f.service.Clear(ctx, c.ID))
	assert.Empty(t, f.reload(t, c.ID).Items)
}

func TestApplyCoupon(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)
	c := f.cart(t, UserOwner(42))
	_, err := f.service.AddItem(ctx, c.ID, v.ID, 3, "")
	require.NoError(t, err)

	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		SiteID: 1, Code: "welcome10", Type: coupon.TypePercentage, Value: dec("0.10"), IsActive: true,
	}))

	_, err = f.service.ApplyCoupon(ctx, c.ID, "NOPE")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	applied, err := f.service.ApplyCoupon(ctx, c.ID, " Welcome10 ")
	require.NoError(t, err)
	assert.True(t, dec("3.00").Equal(applied.DiscountAmount(fixedNow)))

	reloaded := f.reload(t, c.ID)
	require.NotNil(t, reloaded.Coupon)
	assert.Equal(t, "WELCOME10", reloaded.Coupon.Code)

	removed, err := f.service.RemoveCoupon(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, removed.Coupon)
	assert.Nil(t, f.reload(t, c.ID).CouponID)
}

func TestApplyCouponRejections(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	c := f.cart(t, UserOwner(42))
	guest := f.cart(t, GuestOwner("guest-token"))
	one := 1

	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		SiteID: 1, Code: "PRO", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true,
		AllowedCustomerTypes: []product.CustomerType{product.CustomerTypeB2B},
	}))
	first := &coupon.Coupon{SiteID: 1, Code: "FIRST", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true, FirstOrderOnly: true}
	require.NoError(t, f.coupons.Create(ctx, first))
	once := &coupon.Coupon{SiteID: 1, Code: "ONCE", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true, MaxUsagesPerUser: &one}
	require.NoError(t, f.coupons.Create(ctx, once))
	expired := fixedNow.Add(-time.Hour)
	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		SiteID: 1, Code: "OLD", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true, ValidUntil: &expired,
	}))

	_, err := f.service.ApplyCoupon(ctx, c.ID, "PRO")
	assert.ErrorIs(t, err, apperror.ErrCouponNotApplicable)

	_, err = f.service.ApplyCoupon(ctx, c.ID, "OLD")
	assert.ErrorIs(t, err, apperror.ErrCouponNotApplicable)

	_, err = f.service.ApplyCoupon(ctx, guest.ID, "FIRST")
	assert.ErrorIs(t, err, apperror.ErrCouponNotApplicable)

	_, err = f.service.ApplyCoupon(ctx, c.ID, "FIRST")
	require.NoError(t, err)

	userID := uint(42)
	require.NoError(t, f.db.Create(&order.Order{
		Reference: "ORD-20250615-ABCDEF", SiteID: 1, UserID: &userID, Currency: "EUR", Locale: "fr",
		CustomerType: product.CustomerTypeB2C, Status: order.OrderStatusPending,
		Subtotal: dec("10"), TaxRate: dec("0.20"), TaxAmount: dec("2"), ShippingCost: dec("5.90"), GrandTotal: dec("17.90"),
	}).Error)

	_, err = f.service.ApplyCoupon(ctx, c.ID, "FIRST")
	assert.ErrorIs(t, err, apperror.ErrCouponNotApplicable)

	_, err = f.service.ApplyCoupon(ctx, c.ID, "ONCE")
	require.NoError(t, err)
	recorded, err := f.coupons.RecordUsage(ctx, once, &userID, 1)
	require.NoError(t, err)
	require.True(t, recorded)

	_, err = f.service.ApplyCoupon(ctx, c.ID, "ONCE")
	assert.ErrorIs(t, err, apperror.ErrCouponNotApplicable)
}

func TestMergeGuestCartIntoExistingUserCart(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)

	userCart := f.cart(t, UserOwner(42))
	_, err := f.service.AddItem(ctx, userCart.ID, v.ID, 1, "")
	require.NoError(t, err)

	guestCart := f.cart(t, GuestOwner("T"))
	_, err = f.service.AddItem(ctx, guestCart.ID, v.ID, 2, "")
	require.NoError(t, err)

	merged, err := f.service.MergeGuestCart(ctx, 1, "T", 42)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, userCart.ID, merged.ID)

	reloaded := f.reload(t, userCart.ID)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, 3, reloaded.Items[0].Quantity)

	_, err = Load(f.db, guestCart.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.service.FindForOwner(ctx, 1, GuestOwner("T"))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMergeGuestCartWithoutUserCartAttaches(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)

	guestCart := f.cart(t, GuestOwner("T"))
	_, err := f.service.AddItem(ctx, guestCart.ID, v.ID, 2, "")
	require.NoError(t, err)

	merged, err := f.service.MergeGuestCart(ctx, 1, "T", 42)
	require.NoError(t, err)
	assert.Equal(t, guestCart.ID, merged.ID)

	reloaded := f.reload(t, guestCart.ID)
	assert.Equal(t, UserOwner(42), reloaded.Owner)
	assert.Equal(t, fixedNow.Add(UserCartLifetime), reloaded.ExpiresAt.UTC())
	assert.Len(t, reloaded.Items, 1)
}

func TestMergeWithoutGuestCartIsNoop(t *testing.T) {
	f := newCartFixture(t)

	merged, err := f.service.MergeGuestCart(context.Background(), 1, "missing", 42)
	require.NoError(t, err)
	assert.Nil(t, merged)
}

func TestMergeIsAtomic(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	blue := f.tiered(t, "PEN-BLUE", 10)
	red := f.tiered(t, "PEN-RED", 3)

	userCart := f.cart(t, UserOwner(42))
	_, err := f.service.AddItem(ctx, userCart.ID, red.ID, 2, "")
	require.NoError(t, err)

	guestCart := f.cart(t, GuestOwner("T"))
	_, err = f.service.AddItem(ctx, guestCart.ID, blue.ID, 1, "")
	require.NoError(t, err)
	_, err = f.service.AddItem(ctx, guestCart.ID, red.ID, 2, "")
	require.NoError(t, err)

	_, err = f.service.MergeGuestCart(ctx, 1, "T", 42)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	assert.Len(t, f.reload(t, userCart.ID).Items, 1)
	assert.Len(t, f.reload(t, guestCart.ID).Items, 2)
}

func TestSweepExpired(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)

	for _, token := range []string{"a", "b", "c"} {
		c := f.cart(t, GuestOwner(token))
		_, err := f.service.AddItem(ctx, c.ID, v.ID, 1, "")
		require.NoError(t, err)
	}
	live := f.cart(t, UserOwner(42))

	removed, err := f.service.SweepExpired(ctx, fixedNow.Add(8*24*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	var carts, items int64
	require.NoError(t, f.db.Model(&Cart{}).Count(&carts).Error)
	require.NoError(t, f.db.Model(&CartItem{}).Count(&items).Error)
	assert.Equal(t, int64(1), carts)
	assert.Equal(t, int64(0), items)
	_, err = Load(f.db, live.ID)
	assert.NoError(t, err)
}

func TestMergeDropsGuestCouponTheUserCannotUse(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	one := 1

	once := &coupon.Coupon{SiteID: 1, Code: "ONCE", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true, MaxUsagesPerUser: &one}
	require.NoError(t, f.coupons.Create(ctx, once))
	require.NoError(t, f.coupons.Create(ctx, &coupon.Coupon{
		SiteID: 1, Code: "WELCOME", Type: coupon.TypeFixedAmount, Value: dec("5"), IsActive: true,
	}))
	for i, id := range []uint{42, 43} {
		userID := id
		recorded, err := f.coupons.RecordUsage(ctx, once, &userID, uint(i+1))
		require.NoError(t, err)
		require.True(t, recorded)
	}

	tests := []struct {
		name     string
		token    string
		userID   uint
		userCart bool
		code     string
		kept     bool
	}{
		{"into user cart, capped coupon", "guest-a", 42, true, "ONCE", false},
		{"handed over, capped coupon", "guest-b", 43, false, "ONCE", false},
		{"into user cart, usable coupon", "guest-c", 44, true, "WELCOME", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.userCart {
				f.cart(t, UserOwner(tt.userID))
			}
			guest := f.cart(t, GuestOwner(tt.token))
			_, err := f.service.ApplyCoupon(ctx, guest.ID, tt.code)
			require.NoError(t, err)

			merged, err := f.service.MergeGuestCart(ctx, 1, tt.token, tt.userID)
			require.NoError(t, err)
			require.NotNil(t, merged)

			reloaded := f.reload(t, merged.ID)
			if tt.kept {
				require.NotNil(t, reloaded.Coupon)
				assert.Equal(t, tt.code, reloaded.Coupon.Code)
			} else {
				assert.Nil(t, reloaded.CouponID)
				assert.Nil(t, merged.CouponID)
			}
		})
	}
}

func TestSweepKeepsCartTouchedAfterSelection(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)

	var carts []*Cart
	for _, token := range []string{"a", "b", "c"} {
		c := f.cart(t, GuestOwner(token))
		_, err := f.service.AddItem(ctx, c.ID, v.ID, 1, "")
		require.NoError(t, err)
		carts = append(carts, c)
	}
	touched := carts[1]
	sweepAt := fixedNow.Add(8 * 24 * time.Hour)

	// Activity lands on one cart right after the sweep picks its batch
	var once sync.Once
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:touch_cart", func(db *gorm.DB) {
		if db.Statement.Table != "carts" {
			return
		}
		once.Do(func() {
			require.NoError(t, f.db.Exec("UPDATE carts SET expires_at = ? WHERE id = ?", sweepAt.Add(time.Hour), touched.ID).Error)
		})
	}))

	removed, err := f.service.SweepExpired(ctx, sweepAt, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	survivor := f.reload(t, touched.ID)
	assert.Len(t, survivor.Items, 1, "a live cart keeps its lines")
}

func TestEmptyingConsumedCartConflicts(t *testing.T) {
	f := newCartFixture(t)
	ctx := context.Background()
	v := f.tiered(t, "PEN-BLUE", 10)
	c := f.cart(t, UserOwner(42))
	_, err := f.service.AddItem(ctx, c.ID, v.ID, 2, "")
	require.NoError(t, err)

	stale := f.reload(t, c.ID)
	require.Len(t, stale.Items, 1)

	require.NoError(t, f.service.Clear(ctx, c.ID))

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return Empty(tx, stale, fixedNow)
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestCartWithoutOwnerCannotBeStored(t *testing.T) {
	f := newCartFixture(t)

	err := f.db.Create(&Cart{SiteID: 1, Currency: "EUR", CustomerType: product.CustomerTypeB2C, Locale: "fr"}).Error
	assert.ErrorIs(t, err, apperror.ErrInvalidOwner)

	var count int64
	require.NoError(t, f.db.Model(&Cart{}).Count(&count).Error)
	assert.Zero(t, count)
}
