// internal/domain/product/service.go
package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles catalog lookups used by the cart and checkout flows
type Service struct {
	db *gorm.DB
}

// NewService creates a new product service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetVariant retrieves a variant with its product, including soft-deleted rows
func (s *Service) GetVariant(ctx context.Context, id uint) (*Variant, error) {
	return LoadVariant(s.db.WithContext(ctx), id)
}

// LoadVariant loads a variant on the given handle, which may be a transaction.
// Soft-deleted variants are returned so callers can report them as unavailable
// rather than missing.
func LoadVariant(db *gorm.DB, id uint) (*Variant, error) {
	var variant Variant
	result := db.Unscoped().
		Preload("Product", func(db *gorm.DB) *gorm.DB {
			return db.Unscoped()
		}).
		Where("id = ?", id).
		First(&variant)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("variant", id)
		}
		return nil, fmt.Errorf("failed to retrieve variant: %w", result.Error)
	}

	return &variant, nil
}

// CreateProduct persists a product together with its variants
func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}
