package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// setupConsumer configures QoS and returns the delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// prefetch_count bounds unacknowledged messages per consumer so slow
	// executors do not starve other workers
	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// startMessageDispatcher reads RabbitMQ deliveries, decodes them, and feeds
// the worker pool. Malformed messages are rejected without requeue so they
// fall straight to the dead-letter queue.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				w.rejectToDeadLetter(delivery)
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
				w.rejectToDeadLetter(delivery)
				continue
			}

			jd := &jobDelivery{
				msg:           msg,
				deliveryTag:   delivery.DeliveryTag,
				deliveryCount: w.resolveDeliveryCount(delivery),
			}

			select {
			case w.jobsChan <- jd:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
					slog.Int("delivery_count", jd.deliveryCount),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// Requeue so the message is reprocessed after restart
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// rejectToDeadLetter nacks without requeue, routing the message to the DLQ
func (w *Worker) rejectToDeadLetter(delivery amqp.Delivery) {
	if err := delivery.Nack(false, false); err != nil {
		w.logger.Error("Failed to NACK message to dead-letter queue",
			slog.String("error", err.Error()),
		)
	}
}

// deliveryCount extracts how many times the broker has delivered this
// message from the x-delivery-count header quorum queues maintain. The
// second return reports whether the broker supplied a usable count.
func deliveryCount(delivery amqp.Delivery) (int, bool) {
	if raw, ok := delivery.Headers["x-delivery-count"]; ok {
		switch v := raw.(type) {
		case int64:
			return int(v) + 1, true
		case int32:
			return int(v) + 1, true
		case int:
			return v + 1, true
		}
	}

	return 1, false
}

// resolveDeliveryCount turns broker delivery metadata into the count that
// settleDelivery compares against max_receive_count. A redelivered message
// with no counter (classic queue) is treated as exhausted: the Redelivered
// flag cannot count past its first retry, so requeueing again based on it
// would cycle a poisoned message forever.
func (w *Worker) resolveDeliveryCount(delivery amqp.Delivery) int {
	count, counted := deliveryCount(delivery)
	if !counted && delivery.Redelivered {
		return w.maxReceiveCount
	}
	return count
}
