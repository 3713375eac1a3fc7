// internal/domain/order/notifier.go
package order

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusChangedEvent tells the notification pipeline that a customer should
// hear about a status change. Delivery happens outside this service.
type StatusChangedEvent struct {
	OrderID    uint        `json:"order_id"`
	Reference  string      `json:"reference"`
	SiteID     uint        `json:"site_id"`
	UserID     *uint       `json:"user_id,omitempty"`
	Email      string      `json:"email,omitempty"`
	Locale     string      `json:"locale"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	Reason     string      `json:"reason,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Notifier publishes status change notifications
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

// LogNotifier writes notifications to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier backed by the logger
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyStatusChanged logs the event
func (n *LogNotifier) NotifyStatusChanged(ctx context.Context, event StatusChangedEvent) error {
	n.logger.WithFields(logrus.Fields{
		"order_id":    event.OrderID,
		"reference":   event.Reference,
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
	}).Info("Customer notification requested")
	return nil
}
