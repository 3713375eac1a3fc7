// internal/domain/user/service.go
package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Service handles user lookups needed by checkout
type Service struct {
	db *gorm.DB
}

// NewService creates a new user service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetProfile retrieves an active user by ID
func (s *Service) GetProfile(ctx context.Context, userID uint) (*User, error) {
	return Load(s.db.WithContext(ctx), userID)
}

// Load retrieves a user on the given handle, which may be a transaction
func Load(db *gorm.DB, userID uint) (*User, error) {
	var u User
	if err := db.Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return &u, nil
}
