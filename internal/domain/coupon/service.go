// internal/domain/coupon/service.go
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles coupon lookups and redemption bookkeeping
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new coupon service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithTx returns a service bound to the given transaction
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, now: s.now}
}

// Create persists a new coupon
func (s *Service) Create(ctx context.Context, c *Coupon) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// FindByCode looks up a coupon of a site by its case-insensitive code
func (s *Service) FindByCode(ctx context.Context, siteID uint, code string) (*Coupon, error) {
	var c Coupon
	result := s.db.WithContext(ctx).
		Where("site_id = ? AND code = ?", siteID, NormalizeCode(code)).
		First(&c)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("coupon", NormalizeCode(code))
		}
		return nil, fmt.Errorf("failed to retrieve coupon: %w", result.Error)
	}
	return &c, nil
}

// UsageCountForUser counts the redemptions of a coupon by one user
func (s *Service) UsageCountForUser(ctx context.Context, couponID, userID uint) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Usage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count coupon usages: %w", err)
	}
	return int(count), nil
}

// RecordUsage increments the usage counter unless the coupon is exhausted and
// stores a usage row for the order. It returns false when the cap was reached
// concurrently.
func (s *Service) RecordUsage(ctx context.Context, c *Coupon, userID *uint, orderID uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Coupon{}).
		Where("id = ? AND (max_usages IS NULL OR usage_count < max_usages)", c.ID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	usage := Usage{
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&usage).Error; err != nil {
		return false, fmt.Errorf("failed to record coupon usage: %w", err)
	}

	c.UsageCount++
	return true, nil
}
