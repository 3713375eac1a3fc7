// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/domain/inventory"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/domain/product"
	"github.com/your-org/storefront-backend/internal/domain/user"
	"github.com/your-org/storefront-backend/internal/domain/wishlist"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// Models lists every persisted model in dependency order
func Models() []any {
	return []any{
		// Catalog
		&product.Product{},
		&product.Variant{},
		&inventory.Movement{},
		&inventory.StockAlert{},

		// Customers and promotions
		&user.User{},
		&coupon.Coupon{},

		// Carts
		&cart.Cart{},
		&cart.CartItem{},

		// Orders
		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},
		&coupon.Usage{},

		&wishlist.WishlistItem{},
	}
}

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// RunMigrations applies the embedded SQL migrations with goose
func (m *Migration) RunMigrations(ctx context.Context) error {
	m.logger.Info("Running database migrations")

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(m.logger)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	m.logger.WithField("version", version).Info("Database migrations completed")
	return nil
}

// RunAutoMigrations lets gorm reconcile the models with the schema. Only used
// in development on top of the SQL migrations.
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running gorm auto-migrations")

	for _, model := range Models() {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Gorm auto-migrations completed")
	return nil
}

// SeedInitialData inserts a demo catalog, an admin and a welcome coupon.
// Existing rows are left untouched so seeding can run on every start.
func (m *Migration) SeedInitialData(ctx context.Context, siteID uint) error {
	m.logger.Info("Seeding initial data")

	if err := m.seedAdminUser(ctx, siteID); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := m.seedProducts(ctx, siteID); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	if err := m.seedCoupons(ctx, siteID); err != nil {
		return fmt.Errorf("failed to seed coupons: %w", err)
	}

	m.logger.Info("Initial data seeded successfully")
	return nil
}

func (m *Migration) seedAdminUser(ctx context.Context, siteID uint) error {
	db := m.db.WithContext(ctx)

	var existing user.User
	err := db.Where("email = ?", "admin@example.com").First(&existing).Error
	if err == nil {
		m.logger.Debug("Admin user already exists")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	admin := user.User{
		SiteID:       siteID,
		Email:        "admin@example.com",
		FirstName:    "Admin",
		LastName:     "User",
		CustomerType: product.CustomerTypeB2C,
		IsActive:     true,
		IsAdmin:      true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	m.logger.WithField("email", admin.Email).Info("Created admin user")
	return nil
}

func (m *Migration) seedProducts(ctx context.Context, siteID uint) error {
	price := decimal.RequireFromString
	products := []product.Product{
		{
			SiteID:      siteID,
			Name:        "Linen Notebook",
			Slug:        "linen-notebook",
			Description: "Hardcover notebook with linen binding",
			IsActive:    true,
			Variants: []product.Variant{
				{
					SKU:      "NB-LINEN-A5",
					Name:     "A5 dotted",
					Stock:    120,
					Weight:   350,
					IsActive: true,
					Prices: product.PriceTable{}.
						Set("EUR", product.CustomerTypeB2C, product.Tiered(
							product.PriceTier{MinQuantity: 1, Price: price("14.90")},
							product.PriceTier{MinQuantity: 10, Price: price("12.90")},
						)).
						Set("EUR", product.CustomerTypeB2B, product.Tiered(
							product.PriceTier{MinQuantity: 1, Price: price("11.50")},
							product.PriceTier{MinQuantity: 50, Price: price("9.80")},
						)),
				},
			},
		},
		{
			SiteID:      siteID,
			Name:        "Fountain Pen",
			Slug:        "fountain-pen",
			Description: "Steel nib fountain pen",
			IsActive:    true,
			Variants: []product.Variant{
				{
					SKU:      "PEN-FINE-BLK",
					Name:     "Fine nib, black",
					Stock:    40,
					Weight:   25,
					IsActive: true,
					Prices: product.PriceTable{}.
						Set("EUR", product.CustomerTypeB2C, product.Flat(price("39.00"))).
						Set("EUR", product.CustomerTypeB2B, product.Flat(price("32.50"))),
				},
			},
		},
	}

	db := m.db.WithContext(ctx)
	for i := range products {
		var count int64
		if err := db.Model(&product.Product{}).
			Where("site_id = ? AND slug = ?", siteID, products[i].Slug).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			m.logger.WithField("slug", products[i].Slug).Debug("Product already exists")
			continue
		}

		if err := db.Create(&products[i]).Error; err != nil {
			return err
		}
		m.logger.WithField("slug", products[i].Slug).Info("Created product")
	}

	return nil
}

func (m *Migration) seedCoupons(ctx context.Context, siteID uint) error {
	welcome := coupon.Coupon{
		SiteID:               siteID,
		Code:                 "WELCOME10",
		Type:                 coupon.TypePercentage,
		Value:                decimal.RequireFromString("0.10"),
		Description:          "10% off the first order",
		FirstOrderOnly:       true,
		AllowedCustomerTypes: []product.CustomerType{product.CustomerTypeB2C},
		IsActive:             true,
	}

	db := m.db.WithContext(ctx)
	var count int64
	if err := db.Model(&coupon.Coupon{}).
		Where("site_id = ? AND code = ?", siteID, welcome.Code).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if err := db.Create(&welcome).Error; err != nil {
		return err
	}
	m.logger.WithField("code", welcome.Code).Info("Created coupon")
	return nil
}
