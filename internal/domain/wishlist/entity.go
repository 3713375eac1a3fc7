// internal/domain/wishlist/entity.go
package wishlist

import (
	"time"

	"github.com/your-org/storefront-backend/internal/domain/product"
)

// WishlistItem represents a variant a user saved for later
type WishlistItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_wishlist_user_variant" json:"user_id"`
	VariantID uint      `gorm:"not null;uniqueIndex:idx_wishlist_user_variant" json:"variant_id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Note      string    `gorm:"size:500" json:"note,omitempty"`
	AddedAt   time.Time `gorm:"not null" json:"added_at"`

	Variant *product.Variant `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

// TableName overrides the table name
func (WishlistItem) TableName() string {
	return "wishlist_items"
}

// IsAvailable reports whether the saved variant can currently be bought
func (i *WishlistItem) IsAvailable() bool {
	return i.Variant != nil && i.Variant.IsAvailable() && i.Variant.Stock > 0
}
