package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/shared/rabbitmq"
)

// RabbitGateway publishes job messages to the RabbitMQ work queue. Delivery is
// at-least-once; consumers are expected to tolerate duplicates.
type RabbitGateway struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewRabbitGateway creates a new RabbitGateway instance
func NewRabbitGateway(client *rabbitmq.Client, logger *slog.Logger) *RabbitGateway {
	return &RabbitGateway{
		client: client,
		logger: logger,
	}
}

// Enqueue publishes the message, failing fast when the broker is unavailable
func (g *RabbitGateway) Enqueue(ctx context.Context, msg domain.JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := g.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to enqueue job message: %w", err)
	}

	g.logger.Debug("Job message enqueued",
		slog.String("job_id", msg.JobID),
		slog.String("resource_id", msg.ResourceID),
	)

	return nil
}
