package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/domain"
)

// recordTimeout bounds one audit write.
const recordTimeout = 2 * time.Second

// auditQueue hands infractions to a Recorder on its own goroutine, in the
// order they were scored, so scoring never waits on the audit store.
type auditQueue struct {
	recorder  Recorder
	sessionID string
	log       logrus.FieldLogger

	mu     sync.Mutex
	queue  []domain.Infraction
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func newAuditQueue(recorder Recorder, sessionID string, log logrus.FieldLogger) *auditQueue {
	q := &auditQueue{
		recorder:  recorder,
		sessionID: sessionID,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *auditQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		entry := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := q.recorder.Record(ctx, q.sessionID, entry); err != nil {
			q.log.WithError(err).WithField("kind", entry.Kind).Warn("record infraction")
		}
		cancel()
	}
}

func (q *auditQueue) push(entry domain.Infraction) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.WithField("kind", entry.Kind).Warn("audit closed, infraction not recorded")
		return
	}
	q.queue = append(q.queue, entry)
	q.mu.Unlock()
	q.signal()
}

func (q *auditQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close stops accepting entries and waits until the queued ones are written.
func (q *auditQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
