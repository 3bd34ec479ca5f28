package app

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"proctored-quiz-engine/internal/domain"
)

// Gateway is the hosted persistence backend for attempts and answers.
type Gateway interface {
	// UpsertAttempt is idempotent per student, subject and period: an existing
	// attempt for the period is updated in place.
	UpsertAttempt(ctx context.Context, req domain.AttemptUpsert) (string, error)
	InsertAnswers(ctx context.Context, attemptID string, answers []domain.AnswerRecord) error
	UpdateAttemptStatus(ctx context.Context, attemptID string, status domain.AttemptStatus, score *int) error
	InsertScoreRecord(ctx context.Context, attemptID, subjectID string, score int) error
}

// maxTries is one call plus one retry per batch.
const maxTries = 2

// finalItem is everything the closing batch needs for one subject.
type finalItem struct {
	upsert  domain.AttemptUpsert
	answers []domain.AnswerRecord
	score   int
}

// syncer runs gateway calls for one session on a single worker goroutine, so
// calls keep the order they were enqueued in while callers never block on I/O.
type syncer struct {
	gateway Gateway
	ctx     context.Context
	log     logrus.FieldLogger
	// onFailure fires on the worker goroutine when a batch gives up
	onFailure func()

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}

	// worker-owned, guarded by stateMu only during the parallel closing batch
	stateMu  sync.Mutex
	attempts map[string]string
	flushed  map[string]bool
}

func newSyncer(ctx context.Context, gateway Gateway, log logrus.FieldLogger, onFailure func()) *syncer {
	s := &syncer{
		gateway:   gateway,
		ctx:       ctx,
		log:       log,
		onFailure: onFailure,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		attempts:  make(map[string]string),
		flushed:   make(map[string]bool),
	}
	go s.run()
	return s
}

func (s *syncer) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		job()
	}
}

func (s *syncer) enqueue(job func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, job)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *syncer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// close stops accepting jobs; queued jobs still run.
func (s *syncer) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// wait blocks until the worker has drained its queue after close.
func (s *syncer) wait() {
	<-s.done
}

// upsert creates or resumes the attempt of a subject.
func (s *syncer) upsert(req domain.AttemptUpsert) {
	s.enqueue(func() {
		if _, err := s.ensureAttempt(req); err != nil {
			s.fail()
		}
	})
}

// flush submits a completed subject's answers.
func (s *syncer) flush(req domain.AttemptUpsert, answers []domain.AnswerRecord) {
	s.enqueue(func() {
		if err := s.flushSubject(req, answers); err != nil {
			s.fail()
		}
	})
}

// finalize flushes whatever is still unsynced, then marks every attempt
// completed with its score. done reports whether anything stayed unsynced.
func (s *syncer) finalize(items []finalItem, done func(pending bool)) {
	ok := s.enqueue(func() {
		failed := make([]bool, len(items))
		var g errgroup.Group
		g.SetLimit(4)
		for i, item := range items {
			i, item := i, item
			g.Go(func() error {
				failed[i] = s.closeSubject(item) != nil
				return nil
			})
		}
		_ = g.Wait()

		pending := false
		for _, f := range failed {
			pending = pending || f
		}
		done(pending)
	})
	if !ok {
		// callers may hold their own lock while finalizing
		go done(true)
	}
}

func (s *syncer) closeSubject(item finalItem) error {
	log := s.log.WithField("subject", item.upsert.SubjectID)

	attemptID, err := s.ensureAttempt(item.upsert)
	if err != nil {
		return err
	}
	log = log.WithField("attempt", attemptID)

	// a failed flush does not hold back the status update
	flushErr := s.flushSubject(item.upsert, item.answers)

	score := item.score
	if err := s.try(log, "update attempt status", func(ctx context.Context) error {
		return s.gateway.UpdateAttemptStatus(ctx, attemptID, domain.AttemptCompleted, &score)
	}); err != nil {
		return err
	}
	if err := s.try(log, "insert score record", func(ctx context.Context) error {
		return s.gateway.InsertScoreRecord(ctx, attemptID, item.upsert.SubjectID, score)
	}); err != nil {
		return err
	}
	return flushErr
}

func (s *syncer) flushSubject(req domain.AttemptUpsert, answers []domain.AnswerRecord) error {
	s.stateMu.Lock()
	done := s.flushed[req.SubjectID]
	s.stateMu.Unlock()
	if done {
		return nil
	}

	attemptID, err := s.ensureAttempt(req)
	if err != nil {
		return err
	}
	if len(answers) > 0 {
		log := s.log.WithFields(logrus.Fields{"subject": req.SubjectID, "attempt": attemptID})
		if err := s.try(log, "insert answers", func(ctx context.Context) error {
			return s.gateway.InsertAnswers(ctx, attemptID, answers)
		}); err != nil {
			return err
		}
	}

	s.stateMu.Lock()
	s.flushed[req.SubjectID] = true
	s.stateMu.Unlock()
	return nil
}

func (s *syncer) ensureAttempt(req domain.AttemptUpsert) (string, error) {
	s.stateMu.Lock()
	id, ok := s.attempts[req.SubjectID]
	s.stateMu.Unlock()
	if ok {
		return id, nil
	}

	log := s.log.WithField("subject", req.SubjectID)
	err := s.try(log, "upsert attempt", func(ctx context.Context) error {
		var err error
		id, err = s.gateway.UpsertAttempt(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}

	s.stateMu.Lock()
	s.attempts[req.SubjectID] = id
	s.stateMu.Unlock()
	return id, nil
}

func (s *syncer) try(log logrus.FieldLogger, op string, fn func(ctx context.Context) error) error {
	var err error
	for i := 1; i <= maxTries; i++ {
		if err = fn(s.ctx); err == nil {
			return nil
		}
		log.WithError(err).WithFields(logrus.Fields{"op": op, "try": i}).Warn("persistence call failed")
	}
	log.WithError(err).WithField("op", op).Error("giving up, sync pending")
	return domain.E(domain.CategoryPersistence, op, err)
}

func (s *syncer) fail() {
	if s.onFailure != nil {
		s.onFailure()
	}
}

// attemptID returns the attempt recorded for a subject, if any.
func (s *syncer) attemptID(subjectID string) (string, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	id, ok := s.attempts[subjectID]
	return id, ok
}
