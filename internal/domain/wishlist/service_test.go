package wishlist

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"github.com/your-org/storefront-backend/internal/testutil"
	"gorm.io/gorm"
)

type wishlistFixture struct {
	db      *gorm.DB
	service *Service
	carts   *cart.Service
	product product.Product
}

func newWishlistFixture(t *testing.T) *wishlistFixture {
	t.Helper()
	db := testutil.NewDB(t,
		&product.Product{}, &product.Variant{},
		&coupon.Coupon{}, &coupon.Usage{},
		&cart.Cart{}, &cart.CartItem{},
		&order.Order{}, &order.OrderItem{}, &order.OrderStatusHistory{},
		&WishlistItem{},
	)

	p := product.Product{SiteID: 1, Name: "Notebook", Slug: "notebook", IsActive: true}
	require.NoError(t, db.Create(&p).Error)

	carts := cart.NewService(db, coupon.NewService(db), logger.Discard())
	f := &wishlistFixture{
		db:      db,
		carts:   carts,
		service: NewService(db, carts, logger.Discard()),
		product: p,
	}
	f.service.now = func() time.Time {
		return time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	}
	return f
}

func (f *wishlistFixture) variant(t *testing.T, sku string, stock int) *product.Variant {
	t.Helper()
	v := product.Variant{
		ProductID: f.product.ID,
		SKU:       sku,
		Name:      sku,
		Stock:     stock,
		IsActive:  true,
		Prices: product.PriceTable{}.Set("EUR", product.CustomerTypeB2C,
			product.Flat(decimal.RequireFromString("12.00"))),
	}
	require.NoError(t, f.db.Create(&v).Error)
	return &v
}

func (f *wishlistFixture) userCart(t *testing.T, userID uint) *cart.Cart {
	t.Helper()
	c, err := f.carts.GetOrCreate(context.Background(), cart.CartContext{
		SiteID: 1, Owner: cart.UserOwner(userID), Currency: "EUR", CustomerType: product.CustomerTypeB2C,
	})
	require.NoError(t, err)
	return c
}

func TestAdd_IsIdempotent(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()
	v := f.variant(t, "NB-A5", 10)

	first, err := f.service.Add(ctx, 7, v.ID, "")
	require.NoError(t, err)
	assert.Equal(t, f.product.ID, first.ProductID)

	second, err := f.service.Add(ctx, 7, v.ID, "birthday")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := f.service.Count(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var stored WishlistItem
	require.NoError(t, f.db.First(&stored, first.ID).Error)
	assert.Equal(t, "birthday", stored.Note)
}

func TestAdd_UnknownVariant(t *testing.T) {
	f := newWishlistFixture(t)

	_, err := f.service.Add(context.Background(), 7, 999, "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAdd_DeletedVariant(t *testing.T) {
	f := newWishlistFixture(t)
	v := f.variant(t, "NB-OLD", 10)
	require.NoError(t, f.db.Delete(v).Error)

	_, err := f.service.Add(context.Background(), 7, v.ID, "")
	assert.ErrorIs(t, err, apperror.ErrVariantUnavailable)
}

func TestRemove(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()
	v := f.variant(t, "NB-A5", 10)

	item, err := f.service.Add(ctx, 7, v.ID, "")
	require.NoError(t, err)

	t.Run("other user", func(t *testing.T) {
		err := f.service.Remove(ctx, 8, item.ID)
		assert.ErrorIs(t, err, apperror.ErrAccessDenied)
	})

	t.Run("owner", func(t *testing.T) {
		require.NoError(t, f.service.Remove(ctx, 7, item.ID))
		count, err := f.service.Count(ctx, 7)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("missing", func(t *testing.T) {
		err := f.service.Remove(ctx, 7, item.ID)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func TestList_PaginatesAndReportsAvailability(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()

	inStock := f.variant(t, "NB-1", 4)
	soldOut := f.variant(t, "NB-2", 0)
	third := f.variant(t, "NB-3", 2)
	for _, v := range []*product.Variant{inStock, soldOut, third} {
		_, err := f.service.Add(ctx, 7, v.ID, "")
		require.NoError(t, err)
	}
	_, err := f.service.Add(ctx, 8, inStock.ID, "")
	require.NoError(t, err)

	page, err := f.service.List(ctx, 7, 1, 2, "id", "asc")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)
	assert.False(t, page.Pagination.HasPrev)
	assert.Equal(t, inStock.ID, page.Items[0].VariantID)
	assert.Equal(t, 1, page.Available)

	last, err := f.service.List(ctx, 7, 2, 2, "id", "asc")
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, third.ID, last.Items[0].VariantID)
	assert.True(t, last.Pagination.HasPrev)
}

func TestBuildOrderClause(t *testing.T) {
	s := &Service{}

	assert.Equal(t, "added_at desc", s.buildOrderClause("", ""))
	assert.Equal(t, "id asc", s.buildOrderClause("id", "asc"))
	assert.Equal(t, "added_at desc", s.buildOrderClause("name; drop table users", "asc; --"))
}

func TestMoveToCart(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()
	v := f.variant(t, "NB-A5", 10)
	c := f.userCart(t, 7)

	item, err := f.service.Add(ctx, 7, v.ID, "")
	require.NoError(t, err)

	line, err := f.service.MoveToCart(ctx, 7, item.ID, c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.PriceAtAdd.Equal(decimal.RequireFromString("12.00")))

	count, err := f.service.Count(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMoveToCart_KeepsEntryWhenCartRefuses(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()
	v := f.variant(t, "NB-A5", 1)
	c := f.userCart(t, 7)

	item, err := f.service.Add(ctx, 7, v.ID, "")
	require.NoError(t, err)

	_, err = f.service.MoveToCart(ctx, 7, item.ID, c.ID, 3)
	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)

	count, err := f.service.Count(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMoveToCart_OtherUsersItem(t *testing.T) {
	f := newWishlistFixture(t)
	ctx := context.Background()
	v := f.variant(t, "NB-A5", 10)
	c := f.userCart(t, 8)

	item, err := f.service.Add(ctx, 7, v.ID, "")
	require.NoError(t, err)

	_, err = f.service.MoveToCart(ctx, 8, item.ID, c.ID, 1)
	assert.ErrorIs(t, err, apperror.ErrAccessDenied)
}
