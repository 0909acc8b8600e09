package poller

import (
	"log/slog"
	"sync"
	"time"
)

// Registry manages one poller per (resource, task type). Short task types can
// be configured with tighter intervals than long-running ones.
type Registry struct {
	fetch           StatusFunc
	onRefresh       RefreshFunc
	onError         ErrorFunc
	intervals       map[string]time.Duration
	defaultInterval time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewRegistry creates a poller registry with per-task-type intervals
func NewRegistry(fetch StatusFunc, onRefresh RefreshFunc, onError ErrorFunc, intervals map[string]time.Duration, defaultInterval time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		fetch:           fetch,
		onRefresh:       onRefresh,
		onError:         onError,
		intervals:       intervals,
		defaultInterval: defaultInterval,
		logger:          logger,
		pollers:         make(map[string]*Poller),
	}
}

// Start begins (or restarts) polling for the resource and task type
func (r *Registry) Start(resourceID, taskType string) {
	r.mu.Lock()
	key := resourceID + "/" + taskType
	p, ok := r.pollers[key]
	if !ok {
		interval := r.defaultInterval
		if v, found := r.intervals[taskType]; found {
			interval = v
		}
		p = New(r.fetch, r.onRefresh, r.onError, interval, r.logger)
		r.pollers[key] = p
	}
	r.mu.Unlock()

	p.Start(resourceID)
}

// Stop cancels polling for the resource and task type
func (r *Registry) Stop(resourceID, taskType string) {
	r.mu.Lock()
	p, ok := r.pollers[resourceID+"/"+taskType]
	r.mu.Unlock()

	if ok {
		p.Stop()
	}
}

// StopAll cancels every active poller, used at shutdown
func (r *Registry) StopAll() {
	r.mu.Lock()
	pollers := make([]*Poller, 0, len(r.pollers))
	for _, p := range r.pollers {
		pollers = append(pollers, p)
	}
	r.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
