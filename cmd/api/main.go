// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/order"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-backend/internal/infrastructure/messaging/kafka"
	"github.com/your-org/storefront-backend/internal/interfaces/http"
	"github.com/your-org/storefront-backend/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(config.LoggingConfig{}).WithError(err).Fatal("Failed to load configuration")
	}

	log := logger.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting API")

	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	migration := postgres.NewMigration(db.GetDB(), log)
	if err := migration.RunMigrations(context.Background()); err != nil {
		log.WithError(err).Fatal("Database migration failed")
	}

	if cfg.Database.AutoMigrate {
		if err := migration.RunAutoMigrations(); err != nil {
			log.WithError(err).Fatal("Schema auto-migration failed")
		}
	}

	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(context.Background(), cfg.App.DefaultSite); err != nil {
			log.WithError(err).Warn("Data seeding failed")
		}
	}

	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	var notifier order.Notifier = order.NewLogNotifier(log)
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(cfg.Kafka, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka publisher")
		}
		defer publisher.Close()
		notifier = publisher
	}

	server := http.NewServer(cfg, db.GetDB(), redisClient, notifier, log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	log.Info("Server shutdown completed")
}
