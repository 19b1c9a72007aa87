package clock

import (
	"context"
	"sync"
	"time"
)

// TickService runs a periodic tick for each registered subscriber. Active
// sessions register their position broadcast here; the matchmaking sweep
// registers its stale-entry cleanup.
//
// Invariant: all callbacks are invoked at most once per tick interval.
type TickService struct {
	interval time.Duration
	mu       sync.Mutex
	ticks    map[string]func()
}

// NewTickService returns a service that fires ticks every interval.
//
// Precondition: interval must be > 0.
func NewTickService(interval time.Duration) *TickService {
	if interval <= 0 {
		panic("clock.NewTickService: interval must be > 0")
	}
	return &TickService{
		interval: interval,
		ticks:    make(map[string]func()),
	}
}

// Register adds a callback under id. Replaces any existing callback.
func (t *TickService) Register(id string, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks[id] = fn
}

// Unregister removes the tick callback for id.
func (t *TickService) Unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ticks, id)
}

// Start begins the tick loop. Runs until ctx is cancelled.
//
// Postcondition: all registered tick callbacks are invoked once per interval.
func (t *TickService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				callbacks := make(map[string]func(), len(t.ticks))
				for k, v := range t.ticks {
					callbacks[k] = v
				}
				t.mu.Unlock()
				for _, fn := range callbacks {
					fn()
				}
			}
		}
	}()
}
