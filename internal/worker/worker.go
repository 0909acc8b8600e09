package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tranvd/jobflow-be/internal/domain"
	"github.com/tranvd/jobflow-be/shared/rabbitmq"
)

// Store is the job persistence surface the worker needs
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	Claim(ctx context.Context, jobID string) (bool, error)
	Complete(ctx context.Context, jobID, result string) (bool, error)
	Fail(ctx context.Context, jobID, message string) (bool, error)
}

// Executor performs the actual expensive work. It is treated as an opaque,
// potentially slow collaborator whose duration must stay under the broker's
// redelivery window.
type Executor interface {
	Execute(ctx context.Context, resourceID string, taskParameters json.RawMessage) (json.RawMessage, error)
}

// ExecutorFunc adapts a plain function to the Executor interface
type ExecutorFunc func(ctx context.Context, resourceID string, taskParameters json.RawMessage) (json.RawMessage, error)

// Execute implements Executor
func (f ExecutorFunc) Execute(ctx context.Context, resourceID string, taskParameters json.RawMessage) (json.RawMessage, error) {
	return f(ctx, resourceID, taskParameters)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Store           Store
	Executor        Executor
	RabbitClient    *rabbitmq.Client
	Concurrency     int
	PrefetchCount   int
	JobTimeout      time.Duration
	MaxReceiveCount int
}

// Worker consumes job messages from RabbitMQ and drives each job through
// claim, execution, and a terminal status write. The terminal write always
// happens before the message is acknowledged.
type Worker struct {
	logger          *slog.Logger
	store           Store
	executor        Executor
	rabbitClient    *rabbitmq.Client
	concurrency     int
	prefetchCount   int
	jobTimeout      time.Duration
	maxReceiveCount int
	workerID        string
	jobsChan        chan *jobDelivery
	wg              sync.WaitGroup
	stopChan        chan struct{}
}

// jobDelivery pairs a decoded job message with its broker delivery metadata
type jobDelivery struct {
	msg           domain.JobMessage
	deliveryTag   uint64
	deliveryCount int
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	return &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		executor:        cfg.Executor,
		rabbitClient:    cfg.RabbitClient,
		concurrency:     cfg.Concurrency,
		prefetchCount:   cfg.PrefetchCount,
		jobTimeout:      cfg.JobTimeout,
		maxReceiveCount: cfg.MaxReceiveCount,
		workerID:        fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		jobsChan:        make(chan *jobDelivery),
		stopChan:        make(chan struct{}),
	}
}

// Start begins consuming and processing jobs until the context is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Int("max_receive_count", w.maxReceiveCount),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
