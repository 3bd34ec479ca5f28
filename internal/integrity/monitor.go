// Package integrity aggregates academic-integrity signals into a cheating score.
package integrity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/domain"
)

// DefaultThreshold is the cheating score at which a session is force-submitted.
const DefaultThreshold = 10

// Weights maps each infraction kind to the score it adds.
type Weights map[domain.InfractionKind]int

// DefaultWeights returns the stock weighting per infraction kind.
func DefaultWeights() Weights {
	return Weights{
		domain.InfractionTabSwitch:          2,
		domain.InfractionScreenshotAttempt:  3,
		domain.InfractionScreenRecordingEnd: 5,
		domain.InfractionAudioDropout:       2,
		domain.InfractionWebcamDropout:      4,
	}
}

// Weight returns the weight of kind, 1 for kinds without an explicit entry.
func (w Weights) Weight(kind domain.InfractionKind) int {
	if v, ok := w[kind]; ok && v > 0 {
		return v
	}
	return 1
}

// Recorder persists infractions for later audit.
type Recorder interface {
	Record(ctx context.Context, sessionID string, infraction domain.Infraction) error
}

// Recorders fans every infraction out to each recorder in turn.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, sessionID string, infraction domain.Infraction) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, sessionID, infraction); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Monitor owns the cumulative score and infraction log of one session.
type Monitor struct {
	sessionID   string
	weights     Weights
	threshold   int
	onThreshold func(score int)
	audit       *auditQueue
	now         func() time.Time
	log         logrus.FieldLogger

	mu        sync.Mutex
	score     int
	entries   []domain.Infraction
	escalated bool
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithRecorder audits every infraction to r off the reporting goroutine.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		if r != nil {
			m.audit = newAuditQueue(r, m.sessionID, m.log)
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor builds a session-scoped monitor. onThreshold is called at most once,
// the first time the score reaches threshold.
func NewMonitor(sessionID string, weights Weights, threshold int, onThreshold func(score int), log logrus.FieldLogger, opts ...Option) *Monitor {
	if weights == nil {
		weights = DefaultWeights()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m := &Monitor{
		sessionID:   sessionID,
		weights:     weights,
		threshold:   threshold,
		onThreshold: onThreshold,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Report adds an infraction and returns the logged entry.
func (m *Monitor) Report(kind domain.InfractionKind, metadata map[string]string) domain.Infraction {
	m.mu.Lock()
	weight := m.weights.Weight(kind)
	m.score += weight
	entry := domain.Infraction{
		Kind:     kind,
		Weight:   weight,
		Score:    m.score,
		Metadata: metadata,
		At:       m.now().UTC(),
	}
	m.entries = append(m.entries, entry)
	crossed := !m.escalated && m.score >= m.threshold
	if crossed {
		m.escalated = true
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"kind":  kind,
		"score": entry.Score,
	}).Info("infraction reported")

	if crossed {
		m.log.WithField("score", entry.Score).Warn("integrity threshold exceeded")
		if m.onThreshold != nil {
			m.onThreshold(entry.Score)
		}
	}
	if m.audit != nil {
		m.audit.push(entry)
	}
	return entry
}

// Close waits for pending audit writes. Infractions reported afterwards are
// still scored but no longer recorded.
func (m *Monitor) Close() {
	if m.audit != nil {
		m.audit.close()
	}
}

// Score returns the cumulative cheating score.
func (m *Monitor) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.score
}

// Log returns a copy of the infraction log.
func (m *Monitor) Log() []domain.Infraction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Infraction, len(m.entries))
	copy(out, m.entries)
	return out
}

// Escalated reports whether the threshold has been crossed.
func (m *Monitor) Escalated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalated
}

// Threshold returns the configured escalation threshold.
func (m *Monitor) Threshold() int {
	return m.threshold
}
