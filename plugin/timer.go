package plugin

import (
	"context"
	"sync"
	"time"
)

// Timer measures wall-clock time spent in the solve. It imposes no
// constraints on the solve itself. Being registered first so it measures
// the whole run is honored by convention, not enforced: the bus documents
// registration order as observable but not load-bearing for correctness.
type Timer struct {
	BasePlugin

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	started  bool
	finished bool
}

// NewTimer returns a fresh, unstarted Timer plugin.
func NewTimer() *Timer { return &Timer{} }

func (t *Timer) Name() string { return "timer" }

func (t *Timer) Start(_ context.Context, _ Host) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Now()
	t.started = true
	return nil
}

func (t *Timer) Finish(_ Host) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.end = time.Now()
	t.finished = true
}

// Elapsed reports the wall-clock duration between Start and Finish. It
// returns 0 until both have run.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || !t.finished {
		return 0
	}
	return t.end.Sub(t.start)
}
