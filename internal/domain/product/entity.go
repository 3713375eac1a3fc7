// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CustomerType selects the price list a buyer is charged from
type CustomerType string

const (
	CustomerTypeB2C CustomerType = "b2c"
	CustomerTypeB2B CustomerType = "b2b"
)

// IsValid reports whether t is a known customer type
func (t CustomerType) IsValid() bool {
	return t == CustomerTypeB2C || t == CustomerTypeB2B
}

// Product represents a catalog product owned by a site
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SiteID      uint           `gorm:"not null;index" json:"site_id"`
	Name        string         `gorm:"not null;size:255" json:"name"`
	Slug        string         `gorm:"not null;size:255;index" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	ImageURL    string         `gorm:"size:500" json:"image_url"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Variants []Variant `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"variants,omitempty"`
}

// Variant is a purchasable SKU of a product with its own prices and stock
type Variant struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ProductID         uint           `gorm:"not null;index" json:"product_id"`
	SKU               string         `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string         `gorm:"not null;size:255" json:"name"`
	Prices            PriceTable     `gorm:"type:jsonb;serializer:json" json:"prices"`
	Stock             int            `gorm:"not null;default:0" json:"stock"`
	LowStockThreshold int            `gorm:"default:5" json:"low_stock_threshold"`
	Weight            int            `gorm:"default:0" json:"weight"` // grams
	IsActive          bool           `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// TableName overrides
func (Product) TableName() string { return "products" }
func (Variant) TableName() string { return "product_variants" }

// IsDeleted reports whether the variant or its product was soft-deleted
func (v *Variant) IsDeleted() bool {
	if v.DeletedAt.Valid {
		return true
	}
	return v.Product != nil && v.Product.DeletedAt.Valid
}

// IsAvailable reports whether the variant can be sold at all
func (v *Variant) IsAvailable() bool {
	if !v.IsActive || v.IsDeleted() {
		return false
	}
	return v.Product == nil || v.Product.IsActive
}

// IsOrderable reports whether quantity units can be sold right now
func (v *Variant) IsOrderable(quantity int) bool {
	return v.IsAvailable() && v.Stock >= quantity
}

// IsLowStock reports whether the stock is at or below the alert threshold
func (v *Variant) IsLowStock() bool {
	return v.Stock <= v.LowStockThreshold
}

// Snapshot freezes the display fields of the variant
func (v *Variant) Snapshot() Snapshot {
	s := Snapshot{
		VariantID:   v.ID,
		ProductID:   v.ProductID,
		SKU:         v.SKU,
		VariantName: v.Name,
		Weight:      v.Weight,
	}
	if v.Product != nil {
		s.ProductName = v.Product.Name
		s.ProductSlug = v.Product.Slug
		s.ImageURL = v.Product.ImageURL
	}
	return s
}

// Snapshot is a denormalized copy of catalog data captured when a line is
// created. It is never refreshed from the catalog afterwards.
type Snapshot struct {
	VariantID   uint   `json:"variant_id"`
	ProductID   uint   `json:"product_id"`
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	ProductSlug string `json:"product_slug,omitempty"`
	VariantName string `json:"variant_name"`
	ImageURL    string `json:"image_url,omitempty"`
	Weight      int    `json:"weight"`
}

// PriceTier is one quantity breakpoint of a tiered price list
type PriceTier struct {
	MinQuantity int             `json:"min_quantity"`
	Price       decimal.Decimal `json:"price"`
}

// PriceEntry holds either a flat price or a tiered price list
type PriceEntry struct {
	Price *decimal.Decimal `json:"price,omitempty"`
	Tiers []PriceTier      `json:"tiers,omitempty"`
}

// PriceTable maps currency and customer type to a price entry
type PriceTable map[string]map[CustomerType]PriceEntry
