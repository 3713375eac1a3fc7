// internal/domain/order/status.go
package order

import "slices"

// OrderStatus represents the order lifecycle state
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusOnHold     OrderStatus = "on_hold"
)

// AllStatuses lists every order status
var AllStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusFailed,
	OrderStatusOnHold,
}

// statusTransitions lists the statuses reachable in one step from each status.
// Terminal statuses have no entry.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusOnHold},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusOnHold:     {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
}

var (
	cancellableStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusOnHold}
	refundableStatuses  = []OrderStatus{OrderStatusDelivered, OrderStatusCompleted, OrderStatusOnHold}

	// stock has been taken from the ledger for orders in these statuses
	stockDecrementedStatuses = []OrderStatus{
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCompleted,
	}

	notifyingStatuses = []OrderStatus{
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
		OrderStatusOnHold,
	}
)

// IsValid reports whether s is a known status
func (s OrderStatus) IsValid() bool {
	return slices.Contains(AllStatuses, s)
}

// AllowedTransitions returns the statuses reachable from s in one step
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	return slices.Clone(statusTransitions[s])
}

// CanTransitionTo reports whether target is directly reachable from s
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	return slices.Contains(statusTransitions[s], target)
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s.IsValid() && len(statusTransitions[s]) == 0
}

// IsCancellable reports whether an order in s may be cancelled
func (s OrderStatus) IsCancellable() bool {
	return slices.Contains(cancellableStatuses, s)
}

// IsRefundable reports whether an order in s may be refunded
func (s OrderStatus) IsRefundable() bool {
	return slices.Contains(refundableStatuses, s)
}

// DecrementsStock reports whether entering s takes the order's items out of stock
func (s OrderStatus) DecrementsStock() bool {
	return slices.Contains(stockDecrementedStatuses, s)
}

// RestoresStock reports whether entering s puts the order's items back
func (s OrderStatus) RestoresStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// holdsStock reports whether an order in s currently has its items taken
// from stock. An order on hold was always confirmed first.
func (s OrderStatus) holdsStock() bool {
	return s.DecrementsStock() || s == OrderStatusOnHold
}

// NotifiesCustomer reports whether entering s should notify the customer
func (s OrderStatus) NotifiesCustomer() bool {
	return slices.Contains(notifyingStatuses, s)
}
