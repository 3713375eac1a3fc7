// cmd/cartsweep/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/cart"
	"github.com/your-org/storefront-backend/internal/domain/coupon"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
)

const sweepLockKey = "storefront:cart-sweep"

// cartsweep deletes expired carts once and exits. A Redis lock keeps
// overlapping runs from sweeping the same rows.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.LoggingConfig{}).WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Cart sweep failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	lock, err := redisClient.AcquireLock(ctx, sweepLockKey, cfg.Cart.SweepLockTTL)
	if errors.Is(err, redis.ErrLockHeld) {
		log.Info("Another cart sweep is running, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to release sweep lock")
		}
	}()

	carts := cart.NewService(db.GetDB(), coupon.NewService(db.GetDB()), log)
	deleted, err := carts.SweepExpired(ctx, carts.Now(), cfg.Cart.SweepBatchSize)
	if err != nil {
		return fmt.Errorf("swept %d carts before failing: %w", deleted, err)
	}

	log.WithFields(logrus.Fields{
		"deleted":    deleted,
		"batch_size": cfg.Cart.SweepBatchSize,
	}).Info("Cart sweep completed")
	return nil
}
