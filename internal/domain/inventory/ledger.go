// internal/domain/inventory/ledger.go
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/pkg/apperror"
	"gorm.io/gorm"
)

// Ledger applies stock changes to variants. Every change is a single
// conditional write so concurrent orders cannot oversell.
type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

// NewLedger creates a new stock ledger
func NewLedger(db *gorm.DB, logger *logrus.Logger) *Ledger {
	return &Ledger{db: db, logger: logger, now: time.Now}
}

// WithTx returns a ledger bound to the given transaction
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, logger: l.logger, now: l.now}
}

// Decrement removes quantity units from the variant if enough stock remains.
// Insufficient stock is reported as false, not as an error.
func (l *Ledger) Decrement(ctx context.Context, variantID uint, quantity int, reason MovementReason, ref Reference) (bool, error) {
	if quantity < 1 {
		return false, apperror.ErrInvalidQuantity
	}

	db := l.db.WithContext(ctx)
	result := db.Unscoped().Model(&product.Variant{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if result.Error != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	variant, err := l.record(db, variantID, -quantity, reason, ref)
	if err != nil {
		return false, err
	}

	if variant.IsLowStock() {
		l.raiseAlert(db, variant)
	}

	return true, nil
}

// Increment adds quantity units back to the variant unconditionally
func (l *Ledger) Increment(ctx context.Context, variantID uint, quantity int, reason MovementReason, ref Reference) error {
	if quantity < 1 {
		return apperror.ErrInvalidQuantity
	}

	db := l.db.WithContext(ctx)
	result := db.Unscoped().Model(&product.Variant{}).
		Where("id = ?", variantID).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if result.Error != nil {
		return fmt.Errorf("failed to increment stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.NotFound("variant", variantID)
	}

	variant, err := l.record(db, variantID, quantity, reason, ref)
	if err != nil {
		return err
	}

	if !variant.IsLowStock() {
		l.resolveAlerts(db, variantID)
	}

	return nil
}

// Adjust applies a manual correction of delta units in one transaction and
// returns the resulting stock. A positive delta restocks, a negative one
// writes stock off and fails if it would go below zero.
func (l *Ledger) Adjust(ctx context.Context, variantID uint, delta int, ref Reference) (int, error) {
	if delta == 0 {
		return 0, apperror.ErrInvalidQuantity
	}

	var stock int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := l.WithTx(tx)
		if _, err := ledger.Available(ctx, variantID); err != nil {
			return err
		}

		if delta > 0 {
			if err := ledger.Increment(ctx, variantID, delta, ReasonAdjustment, ref); err != nil {
				return err
			}
		} else {
			ok, err := ledger.Decrement(ctx, variantID, -delta, ReasonAdjustment, ref)
			if err != nil {
				return err
			}
			if !ok {
				return apperror.ErrInsufficientStock.With("variant_id", variantID).With("requested", -delta)
			}
		}

		var err error
		stock, err = ledger.Available(ctx, variantID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return stock, nil
}

// Available returns the current stock of a variant
func (l *Ledger) Available(ctx context.Context, variantID uint) (int, error) {
	var variant product.Variant
	err := l.db.WithContext(ctx).Unscoped().
		Select("id", "stock").
		Where("id = ?", variantID).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperror.NotFound("variant", variantID)
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return variant.Stock, nil
}

// Movements lists the audit trail of a variant, newest first
func (l *Ledger) Movements(ctx context.Context, variantID uint) ([]Movement, error) {
	var movements []Movement
	if err := l.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("id DESC").
		Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, nil
}

func (l *Ledger) record(db *gorm.DB, variantID uint, delta int, reason MovementReason, ref Reference) (*product.Variant, error) {
	var variant product.Variant
	if err := db.Unscoped().
		Select("id", "sku", "stock", "low_stock_threshold").
		Where("id = ?", variantID).
		First(&variant).Error; err != nil {
		return nil, fmt.Errorf("failed to reload variant stock: %w", err)
	}

	movement := Movement{
		VariantID:     variantID,
		Delta:         delta,
		StockAfter:    variant.Stock,
		Reason:        reason,
		ReferenceType: ref.Type,
		CreatedAt:     l.now(),
	}
	if ref.ID != 0 {
		id := ref.ID
		movement.ReferenceID = &id
	}

	if err := db.Create(&movement).Error; err != nil {
		return nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	return &variant, nil
}

// raiseAlert logs and stores a low stock alert unless one is already open.
// Alert writes run in a savepoint so a failure never poisons the caller's
// transaction.
func (l *Ledger) raiseAlert(db *gorm.DB, variant *product.Variant) {
	alertType := AlertTypeLowStock
	if variant.Stock == 0 {
		alertType = AlertTypeOutOfStock
	}

	l.logger.WithFields(logrus.Fields{
		"variant_id": variant.ID,
		"sku":        variant.SKU,
		"stock":      variant.Stock,
		"threshold":  variant.LowStockThreshold,
	}).Warn("Variant stock is running low")

	err := db.Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&StockAlert{}).
			Where("variant_id = ? AND alert_type = ? AND is_resolved = ?", variant.ID, alertType, false).
			Count(&open).Error; err != nil {
			return fmt.Errorf("failed to count open alerts: %w", err)
		}
		if open > 0 {
			return nil
		}

		alert := StockAlert{
			VariantID: variant.ID,
			AlertType: alertType,
			Message:   fmt.Sprintf("Variant %s is low on stock (Available: %d, Threshold: %d)", variant.SKU, variant.Stock, variant.LowStockThreshold),
			CreatedAt: l.now(),
		}
		return tx.Create(&alert).Error
	})
	if err != nil {
		l.logger.WithError(err).WithField("variant_id", variant.ID).Error("Failed to store stock alert")
	}
}

func (l *Ledger) resolveAlerts(db *gorm.DB, variantID uint) {
	now := l.now()
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&StockAlert{}).
			Where("variant_id = ? AND is_resolved = ?", variantID, false).
			Updates(map[string]any{"is_resolved": true, "resolved_at": now}).Error
	})
	if err != nil {
		l.logger.WithError(err).WithField("variant_id", variantID).Error("Failed to resolve stock alerts")
	}
}
