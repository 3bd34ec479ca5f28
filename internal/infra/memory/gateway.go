package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"proctored-quiz-engine/internal/domain"
)

// Gateway operation names, used to count calls and inject failures.
const (
	OpUpsertAttempt = "upsert_attempt"
	OpInsertAnswers = "insert_answers"
	OpUpdateStatus  = "update_status"
	OpInsertScore   = "insert_score"
)

// ErrInjected is returned by operations failed through FailNext.
var ErrInjected = errors.New("injected gateway failure")

type attemptKey struct {
	studentID string
	subjectID string
	period    time.Time
}

// Gateway is an in-memory attempt store with the same uniqueness rules as
// the Postgres schema.
type Gateway struct {
	now func() time.Time

	mu       sync.Mutex
	attempts map[string]*domain.AttemptRecord
	byKey    map[attemptKey]string
	answers  map[string]map[string]domain.Option
	scores   []domain.ScoreRecord
	calls    map[string]int
	failures map[string]int
}

func NewGateway() *Gateway {
	return &Gateway{
		now:      time.Now,
		attempts: make(map[string]*domain.AttemptRecord),
		byKey:    make(map[attemptKey]string),
		answers:  make(map[string]map[string]domain.Option),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
}

// FailNext makes the next n calls of op fail.
func (g *Gateway) FailNext(op string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] += n
}

func (g *Gateway) beginLocked(op string) error {
	g.calls[op]++
	if g.failures[op] > 0 {
		g.failures[op]--
		return ErrInjected
	}
	return nil
}

func (g *Gateway) UpsertAttempt(ctx context.Context, req domain.AttemptUpsert) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.beginLocked(OpUpsertAttempt); err != nil {
		return "", err
	}

	at := req.At
	if at.IsZero() {
		at = g.now()
	}
	key := attemptKey{studentID: req.StudentID, subjectID: req.SubjectID, period: domain.PeriodStart(at)}
	if id, ok := g.byKey[key]; ok {
		rec := g.attempts[id]
		rec.QuizID = req.QuizID
		rec.Mode = req.Mode
		rec.TotalQuestions = req.TotalQuestions
		rec.Monitoring = req.Monitoring
		rec.Status = domain.AttemptInProgress
		rec.UpdatedAt = at.UTC()
		return id, nil
	}

	id := uuid.NewString()
	g.attempts[id] = &domain.AttemptRecord{
		ID:             id,
		StudentID:      req.StudentID,
		SubjectID:      req.SubjectID,
		QuizID:         req.QuizID,
		PeriodStart:    key.period,
		Mode:           req.Mode,
		TotalQuestions: req.TotalQuestions,
		Monitoring:     req.Monitoring,
		Status:         domain.AttemptInProgress,
		UpdatedAt:      at.UTC(),
	}
	g.byKey[key] = id
	return id, nil
}

// InsertAnswers keeps one answer per attempt and question; a repeat overwrites it.
func (g *Gateway) InsertAnswers(ctx context.Context, attemptID string, answers []domain.AnswerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.beginLocked(OpInsertAnswers); err != nil {
		return err
	}
	if _, ok := g.attempts[attemptID]; !ok {
		return domain.ErrSessionNotFound
	}
	stored, ok := g.answers[attemptID]
	if !ok {
		stored = make(map[string]domain.Option)
		g.answers[attemptID] = stored
	}
	for _, a := range answers {
		stored[a.QuestionID] = a.SelectedOption
	}
	return nil
}

func (g *Gateway) UpdateAttemptStatus(ctx context.Context, attemptID string, status domain.AttemptStatus, score *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.beginLocked(OpUpdateStatus); err != nil {
		return err
	}
	rec, ok := g.attempts[attemptID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	rec.Status = status
	if score != nil {
		v := *score
		rec.Score = &v
	}
	rec.UpdatedAt = g.now().UTC()
	return nil
}

func (g *Gateway) InsertScoreRecord(ctx context.Context, attemptID, subjectID string, score int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.beginLocked(OpInsertScore); err != nil {
		return err
	}
	g.scores = append(g.scores, domain.ScoreRecord{
		AttemptID:  attemptID,
		SubjectID:  subjectID,
		Score:      score,
		RecordedAt: g.now().UTC(),
	})
	return nil
}

// Attempts returns copies of every stored attempt.
func (g *Gateway) Attempts() []domain.AttemptRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.AttemptRecord, 0, len(g.attempts))
	for _, rec := range g.attempts {
		out = append(out, *rec)
	}
	return out
}

// AttemptFor returns the attempt of a student and subject in the period of at.
func (g *Gateway) AttemptFor(studentID, subjectID string, at time.Time) (domain.AttemptRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byKey[attemptKey{studentID: studentID, subjectID: subjectID, period: domain.PeriodStart(at)}]
	if !ok {
		return domain.AttemptRecord{}, false
	}
	return *g.attempts[id], true
}

// Answers returns the stored answers of an attempt.
func (g *Gateway) Answers(attemptID string) map[string]domain.Option {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]domain.Option, len(g.answers[attemptID]))
	for k, v := range g.answers[attemptID] {
		out[k] = v
	}
	return out
}

// ScoreRecords returns the score history.
func (g *Gateway) ScoreRecords() []domain.ScoreRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.ScoreRecord, len(g.scores))
	copy(out, g.scores)
	return out
}

// Calls reports how often op was invoked, failed calls included.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}
