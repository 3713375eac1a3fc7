// internal/domain/user/entity.go
package user

import (
	"strings"
	"time"

	"github.com/your-org/storefront-backend/internal/domain/product"
	"gorm.io/gorm"
)

// User represents a registered customer or administrator
type User struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	SiteID       uint                 `gorm:"not null;index" json:"site_id"`
	Email        string               `gorm:"uniqueIndex;not null;size:255" json:"email"`
	FirstName    string               `gorm:"size:100" json:"first_name"`
	LastName     string               `gorm:"size:100" json:"last_name"`
	Phone        string               `gorm:"size:20" json:"phone"`
	CompanyName  string               `gorm:"size:255" json:"company_name"`
	CustomerType product.CustomerType `gorm:"size:10;not null;default:'b2c'" json:"customer_type"`
	IsActive     bool                 `gorm:"default:true" json:"is_active"`
	IsAdmin      bool                 `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	DeletedAt    gorm.DeletedAt       `gorm:"index" json:"-"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to handle business logic before user creation
func (u *User) BeforeCreate(tx *gorm.DB) error {
	// Email should be lowercase
	u.Email = strings.ToLower(u.Email)
	if u.CustomerType == "" {
		u.CustomerType = product.CustomerTypeB2C
	}
	return nil
}

// GetFullName returns the user's full name
func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// GetDisplayName returns display name (full name or email)
func (u *User) GetDisplayName() string {
	fullName := u.GetFullName()
	if fullName != "" {
		return fullName
	}
	return u.Email
}

// CustomerSnapshot is the frozen customer data stored on an order
type CustomerSnapshot struct {
	UserID       *uint                `json:"user_id,omitempty"`
	Email        string               `json:"email,omitempty"`
	FirstName    string               `json:"first_name,omitempty"`
	LastName     string               `json:"last_name,omitempty"`
	Phone        string               `json:"phone,omitempty"`
	CompanyName  string               `json:"company_name,omitempty"`
	CustomerType product.CustomerType `json:"customer_type"`
	IsGuest      bool                 `json:"is_guest"`
}

// Snapshot freezes the customer fields an order keeps
func (u *User) Snapshot() CustomerSnapshot {
	id := u.ID
	return CustomerSnapshot{
		UserID:       &id,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		CompanyName:  u.CompanyName,
		CustomerType: u.CustomerType,
	}
}

// GuestSnapshot is the placeholder snapshot used for orders without an account
func GuestSnapshot(customerType product.CustomerType) CustomerSnapshot {
	return CustomerSnapshot{CustomerType: customerType, IsGuest: true}
}
