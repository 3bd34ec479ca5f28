package integrity

import (
	"context"
	"sync"

	"proctored-quiz-engine/internal/domain"
)

// Set runs a group of detectors under one session-scoped cancellation token.
// Once the token is cancelled no detector callback reaches the reporter.
type Set struct {
	detectors []Detector

	mu     sync.Mutex
	cancel context.CancelFunc

	// held for reading while a callback runs
	inflight sync.RWMutex
}

func NewSet(detectors ...Detector) *Set {
	return &Set{detectors: detectors}
}

// Start launches every detector. Cancelling ctx, or calling Disable, closes
// the interlock for all of them at once.
func (s *Set) Start(ctx context.Context, report Reporter) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	interlock, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	guarded := func(kind domain.InfractionKind, metadata map[string]string) {
		s.inflight.RLock()
		defer s.inflight.RUnlock()
		if interlock.Err() != nil {
			return
		}
		report(kind, metadata)
	}
	for _, d := range s.detectors {
		d.Start(interlock, guarded)
	}
}

// Disable closes the interlock without waiting for in-flight callbacks.
// It is safe to call from inside a reporter.
func (s *Set) Disable() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop closes the interlock, waits for in-flight callbacks and stops every
// detector. It must not be called from inside a reporter.
func (s *Set) Stop() {
	s.Disable()
	// drain callbacks that passed the interlock check before it closed
	s.inflight.Lock()
	s.inflight.Unlock()
	for _, d := range s.detectors {
		d.Stop()
	}
}

// Kinds lists the infraction kinds covered by this set.
func (s *Set) Kinds() []domain.InfractionKind {
	kinds := make([]domain.InfractionKind, 0, len(s.detectors))
	for _, d := range s.detectors {
		kinds = append(kinds, d.Kind())
	}
	return kinds
}
