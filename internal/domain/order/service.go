// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles order queries and the order status state machine
type Service struct {
	db       *gorm.DB
	ledger   *inventory.Ledger
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

// NewService creates a new order service
func NewService(db *gorm.DB, ledger *inventory.Ledger, notifier Notifier, logger *logrus.Logger) *Service {
	return &Service{
		db:       db,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Change describes who requested a status change and why
type Change struct {
	ActorType ActorType
	ActorID   *uint
	Reason    string
	Metadata  map[string]any
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page      int         `form:"page,default=1"`
	Limit     int         `form:"limit,default=20"`
	Status    OrderStatus `form:"status"`
	UserID    uint        `form:"user_id"`
	SiteID    uint        `form:"site_id"`
	SortBy    string      `form:"sort_by,default=created_at"`
	SortOrder string      `form:"sort_order,default=desc"`
}

// OrderResponse represents order response with pagination
type OrderResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// GetOrders retrieves orders with filtering and pagination
func (s *Service) GetOrders(ctx context.Context, req *OrderListRequest) (*OrderResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	var orders []Order
	var total int64

	query := s.db.WithContext(ctx).Model(&Order{})

	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.SiteID > 0 {
		query = query.Where("site_id = ?", req.SiteID)
	}

	// Count total records
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if err := query.
		Preload("Items").
		Order(s.buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(offset).
		Limit(req.Limit).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// GetUserOrders retrieves orders for a specific user
func (s *Service) GetUserOrders(ctx context.Context, userID uint, page, limit int) (*OrderResponse, error) {
	return s.GetOrders(ctx, &OrderListRequest{
		Page:   page,
		Limit:  limit,
		UserID: userID,
	})
}

// GetOrder retrieves a single order by ID with items and history
func (s *Service) GetOrder(ctx context.Context, id uint) (*Order, error) {
	return s.findOrder(s.db.WithContext(ctx), "id = ?", id)
}

// GetOrderByReference retrieves a single order by its reference
func (s *Service) GetOrderByReference(ctx context.Context, reference string) (*Order, error) {
	return s.findOrder(s.db.WithContext(ctx), "reference = ?", reference)
}

func (s *Service) findOrder(db *gorm.DB, query string, arg any) (*Order, error) {
	var order Order
	result := db.
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where(query, arg).
		First(&order)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("order", arg)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}

	return &order, nil
}

// ReferenceExists reports whether an order already uses the reference
func ReferenceExists(db *gorm.DB, reference string) (bool, error) {
	var count int64
	if err := db.Unscoped().Model(&Order{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check order reference: %w", err)
	}
	return count > 0, nil
}

// HasPlacedOrders reports whether the user has any order on the site
func HasPlacedOrders(db *gorm.DB, siteID, userID uint) (bool, error) {
	var count int64
	if err := db.Unscoped().Model(&Order{}).
		Where("site_id = ? AND user_id = ?", siteID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count user orders: %w", err)
	}
	return count > 0, nil
}

// ChangeStatus moves an order to target. The status update, stock side
// effects and history record are applied in one transaction; the customer
// notification is published after commit.
func (s *Service) ChangeStatus(ctx context.Context, orderID uint, target OrderStatus, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, target, change, nil)
}

func (s *Service) changeStatus(ctx context.Context, orderID uint, target OrderStatus, change Change, guard func(*Order) error) (*Order, error) {
	if change.ActorType == "" {
		change.ActorType = ActorSystem
	}

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

	order, err := s.findOrder(tx, "id = ?", orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if guard != nil {
		if err := guard(order); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	from := order.Status
	if !from.CanTransitionTo(target) {
		tx.Rollback()
		return nil, apperror.New(apperror.CodeInvalidTransition, "cannot change order status from %s to %s", from, target).
			With("from", from).
			With("to", target)
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":     target,
		"updated_at": now,
	}
	if column := timestampColumn(target); column != "" {
		updates[column] = now
	}

	// Guarded on the status we read so concurrent transitions cannot both apply
	result := tx.Model(&Order{}).
		Where("id = ? AND status = ?", order.ID, from).
		Updates(updates)
	if result.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperror.New(apperror.CodeConflict, "order %s was modified concurrently", order.Reference)
	}

	metadata := cloneMetadata(change.Metadata)
	shortfalls, err := s.applyStockEffects(ctx, tx, order, from, target)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(shortfalls) > 0 {
		metadata["stock_shortfall"] = shortfalls
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	history := OrderStatusHistory{
		OrderID:        order.ID,
		FromStatus:     from,
		ToStatus:       target,
		ChangedByType:  change.ActorType,
		ChangedByID:    change.ActorID,
		Reason:         change.Reason,
		Metadata:       metadata,
		NotifyCustomer: target.NotifiesCustomer(),
		CreatedAt:      now,
	}
	if err := tx.Create(&history).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create status history: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	order.Status = target
	order.UpdatedAt = now
	setTimestamp(order, target, now)
	order.StatusHistory = append(order.StatusHistory, history)

	if history.NotifyCustomer {
		s.publish(ctx, order, history)
	}

	return order, nil
}

// applyStockEffects decrements stock when the order first reaches a
// stock-holding status and restores it when a stock-holding order is
// cancelled or refunded. Decrement shortfalls do not fail the transition;
// they are logged and returned for the history record.
func (s *Service) applyStockEffects(ctx context.Context, tx *gorm.DB, order *Order, from, target OrderStatus) ([]map[string]any, error) {
	ledger := s.ledger.WithTx(tx)
	ref := inventory.Reference{Type: "order", ID: order.ID}

	switch {
	case target.DecrementsStock() && !from.holdsStock():
		var shortfalls []map[string]any
		for _, item := range order.Items {
			if item.VariantID == nil {
				continue
			}
			ok, err := ledger.Decrement(ctx, *item.VariantID, item.Quantity, inventory.ReasonOrderConfirmed, ref)
			if err != nil {
				return nil, err
			}
			if !ok {
				s.logger.WithFields(logrus.Fields{
					"order_id":   order.ID,
					"reference":  order.Reference,
					"variant_id": *item.VariantID,
					"sku":        item.ProductSnapshot.SKU,
					"quantity":   item.Quantity,
					"to_status":  target,
				}).Error("Stock decrement failed during status change")
				shortfalls = append(shortfalls, map[string]any{
					"variant_id": *item.VariantID,
					"sku":        item.ProductSnapshot.SKU,
					"quantity":   item.Quantity,
				})
			}
		}
		return shortfalls, nil

	case target.RestoresStock() && from.holdsStock():
		reason := inventory.ReasonOrderCancelled
		if target == OrderStatusRefunded {
			reason = inventory.ReasonOrderRefunded
		}
		for _, item := range order.Items {
			if item.VariantID == nil {
				continue
			}
			if err := ledger.Increment(ctx, *item.VariantID, item.Quantity, reason, ref); err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					s.logger.WithFields(logrus.Fields{
						"order_id":   order.ID,
						"variant_id": *item.VariantID,
					}).Warn("Variant no longer exists, stock not restored")
					continue
				}
				return nil, err
			}
		}
	}

	return nil, nil
}

func (s *Service) publish(ctx context.Context, order *Order, history OrderStatusHistory) {
	if s.notifier == nil {
		return
	}
	event := StatusChangedEvent{
		OrderID:    order.ID,
		Reference:  order.Reference,
		SiteID:     order.SiteID,
		UserID:     order.UserID,
		Email:      order.CustomerSnapshot.Email,
		Locale:     order.Locale,
		FromStatus: history.FromStatus,
		ToStatus:   history.ToStatus,
		Reason:     history.Reason,
		OccurredAt: history.CreatedAt,
	}
	if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":  order.ID,
			"reference": order.Reference,
			"to_status": history.ToStatus,
		}).Error("Failed to publish order notification")
	}
}

// Named transitions

// ConfirmPayment marks a pending order as paid
func (s *Service) ConfirmPayment(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusConfirmed, withDefaults(change, ActorSystem, "Payment confirmed"), nil)
}

// MarkAsProcessing starts fulfilment
func (s *Service) MarkAsProcessing(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusProcessing, withDefaults(change, ActorAdmin, ""), nil)
}

// MarkAsShipped records the shipment. The tracking number, if any, goes into
// the history metadata.
func (s *Service) MarkAsShipped(ctx context.Context, orderID uint, trackingNumber string, change Change) (*Order, error) {
	change = withDefaults(change, ActorAdmin, "")
	if trackingNumber != "" {
		change.Metadata = cloneMetadata(change.Metadata)
		change.Metadata["tracking_number"] = trackingNumber
	}
	return s.changeStatus(ctx, orderID, OrderStatusShipped, change, nil)
}

// MarkAsDelivered records the delivery
func (s *Service) MarkAsDelivered(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusDelivered, withDefaults(change, ActorSystem, ""), nil)
}

// Complete closes a delivered order
func (s *Service) Complete(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusCompleted, withDefaults(change, ActorSystem, ""), nil)
}

// MarkAsFailed records a failed payment on a pending order
func (s *Service) MarkAsFailed(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusFailed, withDefaults(change, ActorSystem, "Payment failed"), nil)
}

// PutOnHold suspends fulfilment
func (s *Service) PutOnHold(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusOnHold, withDefaults(change, ActorAdmin, ""), nil)
}

// CancelOrder cancels an order that has not shipped yet
func (s *Service) CancelOrder(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusCancelled, withDefaults(change, ActorCustomer, ""), func(o *Order) error {
		if !o.CanBeCancelled() {
			return apperror.New(apperror.CodeOrderNotCancellable, "order %s cannot be cancelled in status %s", o.Reference, o.Status).
				With("status", o.Status)
		}
		return nil
	})
}

// CancelOrderForUser cancels an order on behalf of its owner
func (s *Service) CancelOrderForUser(ctx context.Context, orderID, userID uint, reason string) (*Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOwnedBy(userID) {
		return nil, apperror.ErrAccessDenied
	}
	return s.CancelOrder(ctx, orderID, Change{ActorType: ActorCustomer, ActorID: &userID, Reason: reason})
}

// RefundOrder refunds a delivered, completed or held order
func (s *Service) RefundOrder(ctx context.Context, orderID uint, change Change) (*Order, error) {
	return s.changeStatus(ctx, orderID, OrderStatusRefunded, withDefaults(change, ActorAdmin, ""), func(o *Order) error {
		if !o.CanBeRefunded() {
			return apperror.New(apperror.CodeOrderNotRefundable, "order %s cannot be refunded in status %s", o.Reference, o.Status).
				With("status", o.Status)
		}
		return nil
	})
}

// Private helper methods

func withDefaults(change Change, actor ActorType, reason string) Change {
	if change.ActorType == "" {
		change.ActorType = actor
	}
	if change.Reason == "" {
		change.Reason = reason
	}
	return change
}

func cloneMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func timestampColumn(status OrderStatus) string {
	switch status {
	case OrderStatusConfirmed:
		return "confirmed_at"
	case OrderStatusShipped:
		return "shipped_at"
	case OrderStatusDelivered:
		return "delivered_at"
	case OrderStatusCompleted:
		return "completed_at"
	case OrderStatusCancelled:
		return "cancelled_at"
	case OrderStatusRefunded:
		return "refunded_at"
	}
	return ""
}

func setTimestamp(o *Order, status OrderStatus, now time.Time) {
	switch status {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCompleted:
		o.CompletedAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	case OrderStatusRefunded:
		o.RefundedAt = &now
	}
}

func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":  true,
		"updated_at":  true,
		"grand_total": true,
		"status":      true,
		"reference":   true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}
