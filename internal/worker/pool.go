package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case jd, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", jd.msg.JobID),
				slog.Uint64("delivery_tag", jd.deliveryTag),
			)

			result := w.processMessage(ctx, jd.msg)
			w.settleDelivery(jd, result, workerName)
		}
	}
}

// requeueOnRedeliver reports whether a message that failed processing may go
// back on the queue, or must fall to the dead-letter queue instead
func (w *Worker) requeueOnRedeliver(deliveryCount int) bool {
	return deliveryCount < w.maxReceiveCount
}

// settleDelivery acks or nacks the message according to the processing
// outcome. A redeliver outcome becomes a dead-letter rejection once the
// delivery count reaches the configured maximum.
func (w *Worker) settleDelivery(jd *jobDelivery, result outcome, workerName string) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
			slog.String("worker_name", workerName),
			slog.String("job_id", jd.msg.JobID),
		)
		return
	}

	if result == acknowledge {
		if err := channel.Ack(jd.deliveryTag, false); err != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", jd.msg.JobID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	requeue := w.requeueOnRedeliver(jd.deliveryCount)
	if !requeue {
		w.logger.Warn("Message exhausted receive count, routing to dead-letter queue",
			slog.String("job_id", jd.msg.JobID),
			slog.Int("delivery_count", jd.deliveryCount),
			slog.Int("max_receive_count", w.maxReceiveCount),
		)
	}

	if err := channel.Nack(jd.deliveryTag, false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", jd.msg.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Message NACKed",
		slog.String("worker_name", workerName),
		slog.String("job_id", jd.msg.JobID),
		slog.Bool("requeue", requeue),
	)
}
