// internal/domain/wishlist/service.go
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles wishlist business logic
type Service struct {
	db          *gorm.DB
	cartService *cart.Service
	logger      *logrus.Logger
	now         func() time.Time
}

// NewService creates a new wishlist service
func NewService(db *gorm.DB, cartService *cart.Service, logger *logrus.Logger) *Service {
	return &Service{
		db:          db,
		cartService: cartService,
		logger:      logger,
		now:         time.Now,
	}
}

// AddRequest represents add to wishlist request
type AddRequest struct {
	VariantID uint   `json:"variant_id" binding:"required"`
	Note      string `json:"note" binding:"max=500"`
}

// MoveToCartRequest represents move to cart request
type MoveToCartRequest struct {
	Quantity int `json:"quantity"`
}

// ListResponse represents a wishlist page
type ListResponse struct {
	Items      []WishlistItem `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Available  int            `json:"available"`
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

// Add saves a variant to the user's wishlist. Adding a variant twice returns
// the existing entry, with its note replaced when a new one is given.
func (s *Service) Add(ctx context.Context, userID, variantID uint, note string) (*WishlistItem, error) {
	db := s.db.WithContext(ctx)

	variant, err := product.LoadVariant(db, variantID)
	if err != nil {
		return nil, err
	}
	if variant.IsDeleted() {
		return nil, apperror.ErrVariantUnavailable.With("variant_id", variantID)
	}

	var existing WishlistItem
	result := db.Where("user_id = ? AND variant_id = ?", userID, variantID).First(&existing)
	if result.Error == nil {
		if note != "" && note != existing.Note {
			if err := db.Model(&existing).Update("note", note).Error; err != nil {
				return nil, fmt.Errorf("failed to update wishlist note: %w", err)
			}
		}
		existing.Variant = variant
		return &existing, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check wishlist: %w", result.Error)
	}

	item := WishlistItem{
		UserID:    userID,
		VariantID: variantID,
		ProductID: variant.ProductID,
		Note:      note,
		AddedAt:   s.now().UTC(),
	}
	if err := db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to add item to wishlist: %w", err)
	}
	item.Variant = variant

	return &item, nil
}

// Remove deletes a wishlist entry of the user
func (s *Service) Remove(ctx context.Context, userID, itemID uint) error {
	item, err := s.find(s.db.WithContext(ctx), userID, itemID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&WishlistItem{}, item.ID).Error; err != nil {
		return fmt.Errorf("failed to remove item from wishlist: %w", err)
	}
	return nil
}

// List returns a page of the user's wishlist with the current variant data
func (s *Service) List(ctx context.Context, userID uint, page, limit int, sortBy, sortOrder string) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).Model(&WishlistItem{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count wishlist items: %w", err)
	}

	var items []WishlistItem
	if err := query.
		Preload("Variant", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Preload("Variant.Product", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Order(s.buildOrderClause(sortBy, sortOrder)).
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve wishlist items: %w", err)
	}

	available := 0
	for i := range items {
		if items[i].IsAvailable() {
			available++
		}
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &ListResponse{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
		Available: available,
	}, nil
}

// Count returns the number of items in the user's wishlist
func (s *Service) Count(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&WishlistItem{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// MoveToCart adds a wishlist entry to the cart with the usual add-to-cart
// rules and removes it from the wishlist once the cart accepted it.
func (s *Service) MoveToCart(ctx context.Context, userID, itemID, cartID uint, quantity int) (*cart.CartItem, error) {
	if quantity == 0 {
		quantity = 1
	}

	item, err := s.find(s.db.WithContext(ctx), userID, itemID)
	if err != nil {
		return nil, err
	}

	added, err := s.cartService.AddItem(ctx, cartID, item.VariantID, quantity, "")
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Delete(&WishlistItem{}, item.ID).Error; err != nil {
		s.logger.WithFields(logrus.Fields{
			"wishlist_item_id": item.ID,
			"cart_id":          cartID,
			"error":            err.Error(),
		}).Error("Item moved to cart but not removed from wishlist")
		return nil, fmt.Errorf("failed to remove item from wishlist: %w", err)
	}

	return added, nil
}

func (s *Service) find(db *gorm.DB, userID, itemID uint) (*WishlistItem, error) {
	var item WishlistItem
	if err := db.Where("id = ?", itemID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("wishlist item", itemID)
		}
		return nil, fmt.Errorf("failed to retrieve wishlist item: %w", err)
	}
	if item.UserID != userID {
		return nil, apperror.ErrAccessDenied.With("wishlist_item_id", itemID)
	}
	return &item, nil
}

func (s *Service) buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"added_at":   true,
		"product_id": true,
		"id":         true,
	}

	if !validSortFields[sortBy] {
		sortBy = "added_at"
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s", sortBy, sortOrder)
}
