package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tranvd/jobflow-be/internal/domain"
)

// queryTimeout bounds a single status request. It is deliberately independent
// of the poll interval: a tight interval must not cancel a query that is
// merely slower than one tick.
const queryTimeout = 15 * time.Second

// StatusFunc queries the latest job for a resource
type StatusFunc func(ctx context.Context, resourceID string) (*domain.Job, error)

// RefreshFunc is invoked exactly once when a watched job completes. It is
// assumed idempotent on the collaborator's side.
type RefreshFunc func(resourceID string)

// ErrorFunc surfaces a job failure or a transport error; the poller does not
// retry after either.
type ErrorFunc func(resourceID string, err error)

// Poller repeatedly checks one resource's job status until a terminal state
// or Stop. Each tick schedules the next only after the current query
// resolves, so at most one request is ever outstanding. It is not a thread;
// ticks run on timer callbacks and the poller is idle in between.
type Poller struct {
	fetch     StatusFunc
	onRefresh RefreshFunc
	onError   ErrorFunc
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  *time.Timer
}

// New creates a poller with a fixed per-task-type interval
func New(fetch StatusFunc, onRefresh RefreshFunc, onError ErrorFunc, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		fetch:     fetch,
		onRefresh: onRefresh,
		onError:   onError,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins polling for the resource. Any previous cycle is canceled; the
// first query fires after one interval.
func (p *Poller) Start(resourceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	gen := p.gen
	p.active = true

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.interval, func() {
		p.poll(gen, resourceID)
	})

	p.logger.Debug("Poller started",
		slog.String("resource_id", resourceID),
		slog.Duration("interval", p.interval),
	)
}

// Stop cancels the pending tick. After Stop no further queries are issued and
// no callbacks fire, even if an in-flight request resolves later.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.active = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// poll runs one status query and either reschedules or terminates the cycle
func (p *Poller) poll(gen uint64, resourceID string) {
	if !p.isCurrent(gen) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	job, err := p.fetch(ctx, resourceID)
	cancel()

	p.mu.Lock()
	if gen != p.gen || !p.active {
		// Stopped (or restarted) while the request was in flight
		p.mu.Unlock()
		return
	}

	if err != nil {
		p.active = false
		p.timer = nil
		p.mu.Unlock()
		p.onError(resourceID, err)
		return
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		p.active = false
		p.timer = nil
		p.mu.Unlock()
		p.onRefresh(resourceID)

	case domain.JobStatusFailed:
		p.active = false
		p.timer = nil
		p.mu.Unlock()
		p.onError(resourceID, errors.New(job.ErrorMessage))

	default:
		// Still pending or running; chain the next tick only now that this
		// one has resolved
		p.timer = time.AfterFunc(p.interval, func() {
			p.poll(gen, resourceID)
		})
		p.mu.Unlock()
	}
}

func (p *Poller) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active && gen == p.gen
}
