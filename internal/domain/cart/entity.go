// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Cart lifetimes measured from the last activity
const (
	GuestCartLifetime = 7 * 24 * time.Hour
	UserCartLifetime  = 30 * 24 * time.Hour
)

// Cart is a shopping cart owned by a user or a guest session. Site, currency,
// customer type and locale are fixed when the cart is created.
type Cart struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	SiteID         uint                 `gorm:"not null;uniqueIndex:idx_carts_site_owner" json:"site_id"`
	Owner          Owner                `gorm:"size:100;not null;uniqueIndex:idx_carts_site_owner" json:"owner"`
	Currency       string               `gorm:"size:3;not null" json:"currency"`
	CustomerType   product.CustomerType `gorm:"size:10;not null" json:"customer_type"`
	Locale         string               `gorm:"size:10;not null" json:"locale"`
	CouponID       *uint                `gorm:"index" json:"coupon_id"`
	ExpiresAt      time.Time            `gorm:"not null;index" json:"expires_at"`
	LastActivityAt time.Time            `gorm:"not null" json:"last_activity_at"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`

	// Relationships
	Coupon *coupon.Coupon `gorm:"foreignKey:CouponID;constraint:OnDelete:SET NULL;" json:"coupon,omitempty"`
	Items  []CartItem     `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
}

// CartItem is one line of a cart with the price captured when it was priced
type CartItem struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	CartID          uint                `gorm:"not null;index" json:"cart_id"`
	VariantID       *uint               `gorm:"index" json:"variant_id"` // cleared when the variant is deleted
	ProductID       uint                `gorm:"not null;index" json:"product_id"`
	Quantity        int                 `gorm:"not null" json:"quantity"`
	PriceAtAdd      decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price_at_add"`
	SavingsAtAdd    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"savings_at_add"`
	ProductSnapshot product.Snapshot    `gorm:"type:jsonb;serializer:json" json:"product"`
	CustomMessage   string              `gorm:"type:text" json:"custom_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }

// BeforeCreate rejects carts without an owner
func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.Owner.IsZero() {
		return apperror.ErrInvalidOwner
	}
	return nil
}

// LineTotal returns the snapshot price times the quantity
func (i *CartItem) LineTotal() decimal.Decimal {
	return i.PriceAtAdd.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineWeight returns the snapshot weight times the quantity, in grams
func (i *CartItem) LineWeight() int {
	return i.ProductSnapshot.Weight * i.Quantity
}

// CartContext carries the fixed attributes of a cart created on demand.
// A zero Owner starts a new guest cart with a generated token.
type CartContext struct {
	SiteID       uint
	Owner        Owner
	Currency     string
	CustomerType product.CustomerType
	Locale       string
}

// Summary is the priced view of a cart returned to clients
type Summary struct {
	CartID             uint                 `json:"cart_id"`
	Currency           string               `json:"currency"`
	CustomerType       product.CustomerType `json:"customer_type"`
	Items              []CartItem           `json:"items"`
	ItemCount          int                  `json:"item_count"`
	TotalWeight        int                  `json:"total_weight"`
	Subtotal           decimal.Decimal      `json:"subtotal"`
	DiscountAmount     decimal.Decimal      `json:"discount_amount"`
	TotalAfterDiscount decimal.Decimal      `json:"total_after_discount"`
	ShippingCost       decimal.Decimal      `json:"shipping_cost"`
	FreeShipping       bool                 `json:"free_shipping"`
	GrandTotal         decimal.Decimal      `json:"grand_total"`
	TotalSavings       decimal.Decimal      `json:"total_savings"`
	CouponCode         string               `json:"coupon_code,omitempty"`
	ExpiresAt          time.Time            `json:"expires_at"`
}
