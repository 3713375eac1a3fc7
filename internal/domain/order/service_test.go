package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
	"github.com/your-org/storefront-backend/internal/testutil"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []StatusChangedEvent
	err    error
}

func (n *recordingNotifier) NotifyStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

type orderFixture struct {
	db        *gorm.DB
	service   *Service
	notifier  *recordingNotifier
	ledger    *inventory.Ledger
	variantID uint
	userID    uint
}

func newOrderFixture(t *testing.T, stock int) *orderFixture {
	t.Helper()
	db := testutil.NewDB(t,
		&product.Product{}, &product.Variant{},
		&inventory.Movement{}, &inventory.StockAlert{},
		&Order{}, &OrderItem{}, &OrderStatusHistory{},
	)

	p := product.Product{SiteID: 1, Name: "Notebook", Slug: "notebook", IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	v := product.Variant{
		ProductID: p.ID, SKU: "NB-A5", Name: "A5", Stock: stock, LowStockThreshold: 1, IsActive: true,
		Prices: product.PriceTable{}.Set("EUR", product.CustomerTypeB2C, product.Flat(decimal.NewFromInt(10))),
	}
	require.NoError(t, db.Create(&v).Error)

	log := logger.Discard()
	ledger := inventory.NewLedger(db, log)
	notifier := &recordingNotifier{}
	service := NewService(db, ledger, notifier, log)
	service.now = func() time.Time { return fixedNow }

	return &orderFixture{db: db, service: service, notifier: notifier, ledger: ledger, variantID: v.ID, userID: 42}
}

func (f *orderFixture) createOrder(t *testing.T, status OrderStatus, quantity int) *Order {
	t.Helper()
	variantID := f.variantID
	userID := f.userID
	o := Order{
		Reference:    GenerateReference(fixedNow),
		SiteID:       1,
		UserID:       &userID,
		Currency:     "EUR",
		Locale:       "fr",
		CustomerType: product.CustomerTypeB2C,
		Status:       status,
		Subtotal:     decimal.NewFromInt(int64(10 * quantity)),
		TaxRate:      decimal.RequireFromString("0.20"),
		TaxAmount:    decimal.NewFromInt(int64(2 * quantity)),
		ShippingCost: decimal.RequireFromString("5.90"),
		GrandTotal:   decimal.NewFromInt(int64(12 * quantity)).Add(decimal.RequireFromString("5.90")),
		Items: []OrderItem{{
			VariantID:       &variantID,
			ProductID:       1,
			Quantity:        quantity,
			UnitPrice:       decimal.NewFromInt(10),
			TaxRate:         decimal.RequireFromString("0.20"),
			TaxAmount:       decimal.NewFromInt(int64(2 * quantity)),
			LineTotal:       decimal.NewFromInt(int64(10 * quantity)),
			ProductSnapshot: product.Snapshot{VariantID: variantID, SKU: "NB-A5", ProductName: "Notebook"},
		}},
	}
	require.NoError(t, f.db.Create(&o).Error)
	return &o
}

func (f *orderFixture) stock(t *testing.T) int {
	t.Helper()
	stock, err := f.ledger.Available(context.Background(), f.variantID)
	require.NoError(t, err)
	return stock
}

func TestConfirmPaymentDecrementsStockAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 3)

	updated, err := f.service.ConfirmPayment(ctx, o.ID, Change{})
	require.NoError(t, err)

	assert.Equal(t, OrderStatusConfirmed, updated.Status)
	require.NotNil(t, updated.ConfirmedAt)
	assert.Equal(t, 7, f.stock(t))

	reloaded, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, reloaded.Status)
	require.Len(t, reloaded.StatusHistory, 1)
	h := reloaded.StatusHistory[0]
	assert.Equal(t, OrderStatusPending, h.FromStatus)
	assert.Equal(t, OrderStatusConfirmed, h.ToStatus)
	assert.Equal(t, ActorSystem, h.ChangedByType)
	assert.Equal(t, "Payment confirmed", h.Reason)
	assert.True(t, h.NotifyCustomer)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, o.Reference, f.notifier.events[0].Reference)
	assert.Equal(t, OrderStatusConfirmed, f.notifier.events[0].ToStatus)
}

func TestStockIsDecrementedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 2)

	_, err := f.service.ConfirmPayment(ctx, o.ID, Change{})
	require.NoError(t, err)
	_, err = f.service.MarkAsProcessing(ctx, o.ID, Change{})
	require.NoError(t, err)
	_, err = f.service.PutOnHold(ctx, o.ID, Change{Reason: "address check"})
	require.NoError(t, err)
	_, err = f.service.MarkAsProcessing(ctx, o.ID, Change{})
	require.NoError(t, err)
	_, err = f.service.MarkAsShipped(ctx, o.ID, "TRACK-1", Change{})
	require.NoError(t, err)
	_, err = f.service.MarkAsDelivered(ctx, o.ID, Change{})
	require.NoError(t, err)
	updated, err := f.service.Complete(ctx, o.ID, Change{})
	require.NoError(t, err)

	assert.Equal(t, 8, f.stock(t))
	assert.Len(t, updated.StatusHistory, 7)

	reloaded, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "TRACK-1", reloaded.StatusHistory[4].Metadata["tracking_number"])
	// processing and completed do not notify
	assert.Len(t, f.notifier.events, 4)
}

func TestInvalidTransitionLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 1)

	_, err := f.service.MarkAsShipped(ctx, o.ID, "", Change{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition))

	reloaded, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, reloaded.Status)
	assert.Empty(t, reloaded.StatusHistory)
	assert.Equal(t, 10, f.stock(t))
	assert.Empty(t, f.notifier.events)
}

func TestCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 4)

	_, err := f.service.ConfirmPayment(ctx, o.ID, Change{})
	require.NoError(t, err)
	require.Equal(t, 6, f.stock(t))

	updated, err := f.service.CancelOrder(ctx, o.ID, Change{Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, updated.Status)
	require.NotNil(t, updated.CancelledAt)
	assert.Equal(t, 10, f.stock(t))
	assert.True(t, updated.Status.IsTerminal())
}

func TestCancelPendingOrderDoesNotInflateStock(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 4)

	_, err := f.service.CancelOrder(ctx, o.ID, Change{})
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t))
}

func TestCancelShippedOrderIsNotCancellable(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusShipped, 1)

	_, err := f.service.CancelOrder(ctx, o.ID, Change{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrOrderNotCancellable))
	assert.False(t, errors.Is(err, apperror.ErrInvalidTransition))
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)

	pending := f.createOrder(t, OrderStatusPending, 1)
	_, err := f.service.RefundOrder(ctx, pending.ID, Change{})
	assert.True(t, errors.Is(err, apperror.ErrOrderNotRefundable))

	delivered := f.createOrder(t, OrderStatusDelivered, 3)
	updated, err := f.service.RefundOrder(ctx, delivered.ID, Change{Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusRefunded, updated.Status)
	assert.Equal(t, 13, f.stock(t), "delivered stock goes back")

	_, err = f.service.RefundOrder(ctx, delivered.ID, Change{})
	assert.True(t, errors.Is(err, apperror.ErrOrderNotRefundable), "refunded is terminal")
}

func TestDecrementShortfallIsRecordedNotRaised(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 1)
	o := f.createOrder(t, OrderStatusPending, 5)

	updated, err := f.service.ConfirmPayment(ctx, o.ID, Change{})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, updated.Status)
	assert.Equal(t, 1, f.stock(t))

	reloaded, err := f.service.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.StatusHistory, 1)
	assert.Contains(t, reloaded.StatusHistory[0].Metadata, "stock_shortfall")
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	f.notifier.err = errors.New("broker down")
	o := f.createOrder(t, OrderStatusPending, 1)

	updated, err := f.service.ConfirmPayment(ctx, o.ID, Change{})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusConfirmed, updated.Status)
}

func TestChangeStatusUnknownOrder(t *testing.T) {
	f := newOrderFixture(t, 10)

	_, err := f.service.ChangeStatus(context.Background(), 999, OrderStatusConfirmed, Change{})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestCancelOrderForUserChecksOwnership(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	o := f.createOrder(t, OrderStatusPending, 1)

	_, err := f.service.CancelOrderForUser(ctx, o.ID, 7, "")
	assert.True(t, errors.Is(err, apperror.ErrAccessDenied))

	updated, err := f.service.CancelOrderForUser(ctx, o.ID, f.userID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, updated.Status)
	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	assert.Equal(t, ActorCustomer, last.ChangedByType)
	require.NotNil(t, last.ChangedByID)
	assert.Equal(t, f.userID, *last.ChangedByID)
}

func TestGetUserOrdersAndReference(t *testing.T) {
	ctx := context.Background()
	f := newOrderFixture(t, 10)
	first := f.createOrder(t, OrderStatusPending, 1)
	f.createOrder(t, OrderStatusPending, 2)

	resp, err := f.service.GetUserOrders(ctx, f.userID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Pagination.Total)
	assert.Len(t, resp.Orders, 1)
	assert.True(t, resp.Pagination.HasNext)

	found, err := f.service.GetOrderByReference(ctx, first.Reference)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	exists, err := ReferenceExists(f.db, first.Reference)
	require.NoError(t, err)
	assert.True(t, exists)

	placed, err := HasPlacedOrders(f.db, 1, f.userID)
	require.NoError(t, err)
	assert.True(t, placed)
}
