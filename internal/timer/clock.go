package timer

import (
	"context"
	"sync"
	"time"
)

// Clock emits logical ticks to fn until ctx is cancelled.
type Clock interface {
	Run(ctx context.Context, fn func())
}

// Ticker is a wall-clock Clock.
type Ticker struct {
	Every time.Duration
}

// NewTicker returns a Clock ticking every d (one second when d <= 0).
func NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		d = time.Second
	}
	return &Ticker{Every: d}
}

// Run starts a goroutine that calls fn on every tick. ctx is consulted
// before each call so no tick is delivered after cancellation.
func (t *Ticker) Run(ctx context.Context, fn func()) {
	ticker := time.NewTicker(t.Every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()
}

// Manual is a Clock advanced explicitly, for deterministic tests and replays.
type Manual struct {
	mu   sync.Mutex
	runs []manualRun
}

type manualRun struct {
	ctx context.Context
	fn  func()
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Run(ctx context.Context, fn func()) {
	m.mu.Lock()
	m.runs = append(m.runs, manualRun{ctx: ctx, fn: fn})
	m.mu.Unlock()
}

// Advance delivers n ticks synchronously to every live subscriber.
func (m *Manual) Advance(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		runs := make([]manualRun, 0, len(m.runs))
		for _, r := range m.runs {
			if r.ctx.Err() == nil {
				runs = append(runs, r)
			}
		}
		m.runs = runs
		m.mu.Unlock()

		for _, r := range runs {
			if r.ctx.Err() == nil {
				r.fn()
			}
		}
	}
}

// Subscribers reports how many runs are still live.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := 0
	for _, r := range m.runs {
		if r.ctx.Err() == nil {
			live++
		}
	}
	return live
}
