// internal/infrastructure/messaging/kafka/publisher.go
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/domain/order"
)

// Producer is the part of the franz-go client the publisher needs
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher sends order status notifications to a Kafka topic. Records are
// keyed by order reference so one order's events stay in one partition.
type Publisher struct {
	producer Producer
	topic    string
	logger   *logrus.Logger
}

// NewPublisher connects a franz-go client to the configured brokers
func NewPublisher(cfg config.KafkaConfig, logger *logrus.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.NotificationTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.NotificationTopic,
	}).Info("Kafka publisher ready")

	return NewPublisherWithProducer(client, cfg.NotificationTopic, logger), nil
}

// NewPublisherWithProducer builds a publisher on an existing producer
func NewPublisherWithProducer(producer Producer, topic string, logger *logrus.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// NotifyStatusChanged implements order.Notifier
func (p *Publisher) NotifyStatusChanged(ctx context.Context, event order.StatusChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode status event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Reference),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte("order.status_changed")},
			{Key: "to_status", Value: []byte(event.ToStatus)},
		},
	}

	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish status event for %s: %w", event.Reference, err)
	}

	p.logger.WithFields(logrus.Fields{
		"reference": event.Reference,
		"to_status": event.ToStatus,
		"topic":     p.topic,
	}).Debug("Status event published")
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() {
	p.producer.Close()
}

var _ order.Notifier = (*Publisher)(nil)
