package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/talentpitch/searchrec/internal/config"
	"github.com/talentpitch/searchrec/pkg/models"
)

// FeedEvent is the telemetry record published after every assembled
// feed. Consumers use it for offline reward computation and monitoring.
type FeedEvent struct {
	EventID   uuid.UUID          `json:"event_id"`
	UserID    int64              `json:"user_id"`
	SessionID string             `json:"session_id"`
	Endpoint  string             `json:"endpoint"`
	ItemIDs   []int64            `json:"item_ids"`
	Metrics   models.FeedMetrics `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// FeedEventProducer publishes feed events to Kafka. A nil producer is
// valid and drops every event, so deployments without brokers run
// unchanged.
type FeedEventProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewFeedEventProducer returns nil when no brokers are configured.
func NewFeedEventProducer(cfg *config.Config, logger *logrus.Logger) *FeedEventProducer {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("Kafka brokers not configured, feed events disabled")
		return nil
	}

	return &FeedEventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topics.FeedEvents,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}
}

// PublishFeedGenerated emits one event; failures are logged and never
// propagate to the request path.
func (p *FeedEventProducer) PublishFeedGenerated(userID int64, sessionID, endpoint string, itemIDs []int64, metrics models.FeedMetrics) {
	if p == nil {
		return
	}

	event := FeedEvent{
		EventID:   uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Endpoint:  endpoint,
		ItemIDs:   itemIDs,
		Metrics:   metrics,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal feed event")
		return
	}

	message := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", userID)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "endpoint", Value: []byte(endpoint)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.WithError(err).Error("Failed to publish feed event")
	}
}

// Close flushes and closes the underlying writer.
func (p *FeedEventProducer) Close() error {
	if p == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close feed event producer: %w", err)
	}
	return nil
}
