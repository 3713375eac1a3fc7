// internal/domain/coupon/entity.go
package coupon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"gorm.io/gorm"
)

// Type represents how a coupon reduces the order
type Type string

const (
	TypePercentage   Type = "percentage"
	TypeFixedAmount  Type = "fixed_amount"
	TypeFreeShipping Type = "free_shipping"
)

// Coupon represents a discount code of a site
type Coupon struct {
	ID                   uint                   `gorm:"primaryKey" json:"id"`
	SiteID               uint                   `gorm:"not null;uniqueIndex:idx_coupons_site_code" json:"site_id"`
	Code                 string                 `gorm:"not null;size:50;uniqueIndex:idx_coupons_site_code" json:"code"`
	Type                 Type                   `gorm:"not null;size:20" json:"type"`
	Value                decimal.Decimal        `gorm:"type:decimal(12,4);not null;default:0" json:"value"` // fraction for percentage coupons
	Description          string                 `gorm:"size:255" json:"description"`
	MinimumAmount        decimal.NullDecimal    `gorm:"type:decimal(12,2)" json:"minimum_amount"`
	MaximumDiscount      decimal.NullDecimal    `gorm:"type:decimal(12,2)" json:"maximum_discount"`
	ValidFrom            *time.Time             `json:"valid_from"`
	ValidUntil           *time.Time             `json:"valid_until"`
	MaxUsages            *int                   `json:"max_usages"`
	MaxUsagesPerUser     *int                   `json:"max_usages_per_user"`
	UsageCount           int                    `gorm:"not null;default:0" json:"usage_count"`
	FirstOrderOnly       bool                   `gorm:"default:false" json:"first_order_only"`
	AllowedCustomerTypes []product.CustomerType `gorm:"type:jsonb;serializer:json" json:"allowed_customer_types"`
	IsActive             bool                   `gorm:"default:true" json:"is_active"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	DeletedAt            gorm.DeletedAt         `gorm:"index" json:"-"`
}

// Usage records one redemption of a coupon by an order
type Usage struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	CouponID uint      `gorm:"not null;index" json:"coupon_id"`
	UserID   *uint     `gorm:"index" json:"user_id"`
	OrderID  uint      `gorm:"not null;index" json:"order_id"`
	UsedAt   time.Time `gorm:"not null" json:"used_at"`
}

// TableName overrides
func (Coupon) TableName() string { return "coupons" }
func (Usage) TableName() string  { return "coupon_usages" }

// NormalizeCode returns the canonical form used for storage and lookup
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// BeforeSave keeps codes case-insensitive
func (c *Coupon) BeforeSave(tx *gorm.DB) error {
	c.Code = NormalizeCode(c.Code)
	return nil
}

// Snapshot is the frozen coupon data stored on an order
type Snapshot struct {
	ID          uint            `json:"id"`
	Code        string          `json:"code"`
	Type        Type            `json:"type"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty"`
}

// Snapshot freezes the coupon fields an order keeps
func (c *Coupon) Snapshot() Snapshot {
	return Snapshot{
		ID:          c.ID,
		Code:        c.Code,
		Type:        c.Type,
		Value:       c.Value,
		Description: c.Description,
	}
}
