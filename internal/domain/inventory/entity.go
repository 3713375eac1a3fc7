// internal/domain/inventory/entity.go
package inventory

import (
	"time"
)

// MovementReason represents why a variant's stock changed
type MovementReason string

const (
	ReasonOrderConfirmed MovementReason = "order_confirmed"
	ReasonOrderCancelled MovementReason = "order_cancelled"
	ReasonOrderRefunded  MovementReason = "order_refunded"
	ReasonAdjustment     MovementReason = "adjustment"
)

// AlertType represents the kind of stock alert
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"
	AlertTypeOutOfStock AlertType = "out_of_stock"
)

// Reference points at the record that caused a movement
type Reference struct {
	Type string
	ID   uint
}

// Movement is an append-only audit row for every stock change
type Movement struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	VariantID     uint           `gorm:"not null;index" json:"variant_id"`
	Delta         int            `gorm:"not null" json:"delta"`
	StockAfter    int            `gorm:"not null" json:"stock_after"`
	Reason        MovementReason `gorm:"not null;size:30" json:"reason"`
	ReferenceType string         `gorm:"size:30" json:"reference_type"`
	ReferenceID   *uint          `json:"reference_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StockAlert flags a variant that ran low or out of stock
type StockAlert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	VariantID  uint       `gorm:"not null;index" json:"variant_id"`
	AlertType  AlertType  `gorm:"not null;size:20" json:"alert_type"`
	Message    string     `gorm:"type:text" json:"message"`
	IsResolved bool       `gorm:"default:false" json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName overrides
func (Movement) TableName() string   { return "stock_movements" }
func (StockAlert) TableName() string { return "stock_alerts" }
