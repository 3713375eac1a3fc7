// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"gorm.io/gorm"
)

// ActorType identifies who changed an order status
type ActorType string

const (
	ActorSystem   ActorType = "system"
	ActorAdmin    ActorType = "admin"
	ActorCustomer ActorType = "customer"
)

// Order represents a placed order. Monetary fields and snapshots are frozen
// at checkout; only the status and its history change afterwards.
type Order struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	Reference    string               `gorm:"uniqueIndex;not null;size:30" json:"reference"`
	SiteID       uint                 `gorm:"not null;index" json:"site_id"`
	UserID       *uint                `gorm:"index" json:"user_id"` // Nullable for guest orders
	Currency     string               `gorm:"size:3;not null" json:"currency"`
	Locale       string               `gorm:"size:10;not null" json:"locale"`
	CustomerType product.CustomerType `gorm:"size:10;not null" json:"customer_type"`
	Status       OrderStatus          `gorm:"size:20;not null;default:'pending';index" json:"status"`

	// Financial Information
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"tax_rate"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	ShippingCost   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"shipping_cost"`
	GrandTotal     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"grand_total"`

	// Snapshots
	ShippingAddress  Address               `gorm:"type:jsonb;serializer:json" json:"shipping_address"`
	BillingAddress   Address               `gorm:"type:jsonb;serializer:json" json:"billing_address"`
	CustomerSnapshot user.CustomerSnapshot `gorm:"type:jsonb;serializer:json" json:"customer"`
	AppliedCoupon    *coupon.Snapshot      `gorm:"type:jsonb;serializer:json" json:"applied_coupon,omitempty"`
	CouponID         *uint                 `gorm:"index" json:"coupon_id"`

	// Additional Information
	CustomerMessage string         `gorm:"type:text" json:"customer_message"`
	Metadata        map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	// Timestamps
	ConfirmedAt *time.Time     `json:"confirmed_at"`
	ShippedAt   *time.Time     `json:"shipped_at"`
	DeliveredAt *time.Time     `json:"delivered_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	CancelledAt *time.Time     `json:"cancelled_at"`
	RefundedAt  *time.Time     `json:"refunded_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is a frozen copy of a cart line
type OrderItem struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	OrderID         uint                `gorm:"not null;index" json:"order_id"`
	VariantID       *uint               `gorm:"index" json:"variant_id"`
	ProductID       uint                `gorm:"not null;index" json:"product_id"`
	Quantity        int                 `gorm:"not null" json:"quantity"`
	UnitPrice       decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TaxRate         decimal.Decimal     `gorm:"type:decimal(5,4);not null" json:"tax_rate"`
	TaxAmount       decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	LineTotal       decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"line_total"`
	SavingsAmount   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"savings_amount"`
	ProductSnapshot product.Snapshot    `gorm:"type:jsonb;serializer:json" json:"product"`
	CustomMessage   string              `gorm:"type:text" json:"custom_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// OrderStatusHistory is an append-only record of one accepted transition
type OrderStatusHistory struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrderID        uint           `gorm:"not null;index" json:"order_id"`
	FromStatus     OrderStatus    `gorm:"size:20" json:"from_status"`
	ToStatus       OrderStatus    `gorm:"size:20;not null" json:"to_status"`
	ChangedByType  ActorType      `gorm:"size:20;not null" json:"changed_by_type"`
	ChangedByID    *uint          `gorm:"index" json:"changed_by_id"`
	Reason         string         `gorm:"type:text" json:"reason,omitempty"`
	Metadata       map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	NotifyCustomer bool           `gorm:"default:false" json:"notify_customer"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Address represents a frozen shipping or billing address
type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Company      string `json:"company,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"` // ISO 2-letter code
	Phone        string `json:"phone,omitempty"`
}

// IsZero reports whether no address field was provided
func (a Address) IsZero() bool {
	return a == Address{}
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }

// Business methods for Order

// GenerateReference builds a human readable order reference.
// Format: ORD-YYYYMMDD-XXXXXX
func GenerateReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status.IsCancellable()
}

// CanBeRefunded checks if order can be refunded
func (o *Order) CanBeRefunded() bool {
	return o.Status.IsRefundable()
}

// IsOwnedBy reports whether the order belongs to the user
func (o *Order) IsOwnedBy(userID uint) bool {
	return o.UserID != nil && *o.UserID == userID
}

// ItemCount returns the total quantity ordered
func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}
