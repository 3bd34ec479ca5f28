package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/grading"
	"proctored-quiz-engine/internal/integrity"
	"proctored-quiz-engine/internal/media"
	"proctored-quiz-engine/internal/timer"
)

// MediaCapture acquires the monitoring streams and relays integrity signals.
type MediaCapture interface {
	integrity.Source
	RequestAccess(ctx context.Context) (media.Access, error)
	AttachPreview(stream media.Stream, sink string) error
	ReleaseAll()
}

// EngineConfig tunes one attempt session.
type EngineConfig struct {
	SecondsPerSubject int
	Mode              string
	Threshold         int
	Weights           integrity.Weights
}

// EngineDeps are the collaborators of one attempt session.
type EngineDeps struct {
	Gateway  Gateway
	Media    MediaCapture
	Clock    timer.Clock
	Recorder integrity.Recorder
	Log      logrus.FieldLogger
	Now      func() time.Time
	// PersistCtx bounds gateway calls; it outlives the monitoring interlock.
	PersistCtx context.Context
}

type questionRef struct {
	subject int
	index   int
}

// Engine drives one learner through a multi-subject, timed, monitored assessment.
type Engine struct {
	id        string
	studentID string
	cfg       EngineConfig
	bundle    catalog.Bundle
	questions [][]domain.Question
	lookup    map[string]questionRef

	media   MediaCapture
	clock   timer.Clock
	monitor *integrity.Monitor
	syncer  *syncer
	now     func() time.Time
	log     logrus.FieldLogger

	// interlock is the single token consulted by detectors and the clock
	interlock context.Context
	disable   context.CancelFunc
	done      chan struct{}
	teardown  sync.Once

	mu          sync.Mutex
	state       domain.State
	current     int
	question    int
	answers     map[string]domain.Option
	completed   []bool
	reasons     []domain.CompletionReason
	timers      *timer.Countdowns
	access      media.Access
	detectors   *integrity.Set
	result      *domain.QuizResult
	forced      bool
	syncPending bool
	subscribers map[chan domain.Snapshot]struct{}
}

// NewEngine validates the catalog bundle and returns an engine waiting for
// monitoring consent. Nothing is persisted until consent is given.
func NewEngine(id, studentID string, bundle catalog.Bundle, cfg EngineConfig, deps EngineDeps) (*Engine, error) {
	const op = "app.NewEngine"
	if len(bundle.Subjects) == 0 {
		return nil, domain.E(domain.CategoryInitialization, op, domain.ErrNoSubjects)
	}
	if len(bundle.Questions) == 0 {
		return nil, domain.E(domain.CategoryInitialization, op, domain.ErrNoQuestions)
	}
	if deps.Media == nil || deps.Gateway == nil {
		return nil, domain.E(domain.CategoryInitialization, op, errors.New("media capture and gateway are required"))
	}
	if cfg.SecondsPerSubject <= 0 {
		cfg.SecondsPerSubject = 60
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Clock == nil {
		deps.Clock = timer.NewTicker(time.Second)
	}
	if deps.PersistCtx == nil {
		deps.PersistCtx = context.Background()
	}
	log := deps.Log.WithFields(logrus.Fields{"session": id, "student": studentID})

	e := &Engine{
		id:          id,
		studentID:   studentID,
		cfg:         cfg,
		bundle:      bundle,
		questions:   make([][]domain.Question, len(bundle.Subjects)),
		lookup:      make(map[string]questionRef, len(bundle.Questions)),
		media:       deps.Media,
		clock:       deps.Clock,
		now:         deps.Now,
		log:         log,
		done:        make(chan struct{}),
		state:       domain.StateInitializing,
		answers:     make(map[string]domain.Option),
		completed:   make([]bool, len(bundle.Subjects)),
		reasons:     make([]domain.CompletionReason, len(bundle.Subjects)),
		timers:      timer.StartAll(len(bundle.Subjects), cfg.SecondsPerSubject),
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
	e.interlock, e.disable = context.WithCancel(context.Background())

	for i, s := range bundle.Subjects {
		e.questions[i] = bundle.QuestionsFor(s.ID)
		for j, q := range e.questions[i] {
			e.lookup[q.ID] = questionRef{subject: i, index: j}
		}
	}
	first := -1
	for i := range e.questions {
		if len(e.questions[i]) == 0 {
			e.completed[i] = true
			e.reasons[i] = domain.ReasonEmpty
			e.timers.Freeze(i)
		} else if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return nil, domain.E(domain.CategoryInitialization, op, domain.ErrNoQuestions)
	}
	e.current = first

	opts := []integrity.Option{integrity.WithClock(deps.Now)}
	if deps.Recorder != nil {
		opts = append(opts, integrity.WithRecorder(deps.Recorder))
	}
	e.monitor = integrity.NewMonitor(id, cfg.Weights, cfg.Threshold, e.forceSubmit, log, opts...)
	e.syncer = newSyncer(deps.PersistCtx, deps.Gateway, log, e.markSyncPending)

	e.state = domain.StateAwaitingConsent
	log.WithField("subjects", len(bundle.Subjects)).Info("session initialized")
	return e, nil
}

// ID returns the session identifier.
func (e *Engine) ID() string {
	return e.id
}

// Consent requests camera, screen and microphone access. Camera and screen are
// required; a missing microphone only degrades integrity coverage. A refusal
// leaves the engine waiting so consent can be retried.
func (e *Engine) Consent(ctx context.Context) error {
	const op = "app.Consent"
	e.mu.Lock()
	switch e.state {
	case domain.StateAwaitingConsent:
	case domain.StateInProgress:
		e.mu.Unlock()
		return nil
	default:
		e.mu.Unlock()
		return e.closedErr(op)
	}
	e.mu.Unlock()

	access, err := e.media.RequestAccess(ctx)
	if err != nil {
		e.log.WithError(err).Warn("media access request failed")
		return domain.E(domain.CategoryConsent, op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateAwaitingConsent {
		return e.closedErr(op)
	}
	if !access.Ready() {
		e.log.WithField("errors", access.Errors).Info("monitoring consent refused")
		return domain.E(domain.CategoryConsent, op, domain.ErrConsentRequired)
	}

	e.access = access
	e.state = domain.StateInProgress
	if !access.Audio {
		e.log.Warn("microphone unavailable, integrity coverage degraded")
	}
	for _, stream := range []media.Stream{media.StreamWebcam, media.StreamScreen} {
		if err := e.media.AttachPreview(stream, "preview:"+string(stream)); err != nil {
			e.log.WithError(err).WithField("stream", stream).Warn("attach preview")
		}
	}

	e.ensureAttemptLocked(e.current)
	e.detectors = integrity.NewSet(integrity.DetectorsFor(e.media, access)...)
	e.detectors.Start(e.interlock, e.reportInfraction)
	e.clock.Run(e.interlock, e.Tick)

	e.log.Info("assessment started")
	e.publishLocked()
	return nil
}

// Tick advances the live countdown by one second.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateInProgress || e.interlock.Err() != nil {
		return
	}
	i := e.current
	if e.completed[i] || len(e.questions[i]) == 0 {
		return
	}
	if e.timers.Tick(i) {
		e.log.WithField("subject", e.bundle.Subjects[i].ID).Info("subject time expired")
		e.completeSubjectLocked(i, domain.ReasonTimeout)
		e.finishIfDoneLocked()
	}
	e.publishLocked()
}

// SelectAnswer records the learner's choice locally. Persistence happens when
// the subject is completed.
func (e *Engine) SelectAnswer(questionID, option string) error {
	const op = "app.SelectAnswer"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	opt, ok := domain.ParseOption(option)
	if !ok {
		return domain.E(domain.CategoryValidation, op, domain.ErrInvalidOption)
	}
	ref, ok := e.lookup[questionID]
	if !ok {
		return domain.E(domain.CategoryValidation, op, domain.ErrUnknownQuestion)
	}
	if e.completed[ref.subject] {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectCompleted)
	}
	e.answers[questionID] = opt
	e.publishLocked()
	return nil
}

// NextQuestion moves forward; advancing past the last question completes the subject.
func (e *Engine) NextQuestion() error {
	const op = "app.NextQuestion"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	i := e.current
	if e.completed[i] {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectCompleted)
	}
	if e.question < len(e.questions[i])-1 {
		e.question++
	} else {
		e.completeSubjectLocked(i, domain.ReasonFinished)
		e.finishIfDoneLocked()
	}
	e.publishLocked()
	return nil
}

// PreviousQuestion moves back; it is a no-op on the first question.
func (e *Engine) PreviousQuestion() error {
	const op = "app.PreviousQuestion"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	if e.question > 0 {
		e.question--
		e.publishLocked()
	}
	return nil
}

// ChangeSubject switches the active subject. Switching away from an
// incomplete subject is rejected and leaves the state untouched.
func (e *Engine) ChangeSubject(index int) error {
	const op = "app.ChangeSubject"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	if index < 0 || index >= len(e.bundle.Subjects) {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectOutOfRange)
	}
	if index == e.current {
		return nil
	}
	if !e.completed[e.current] {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectIncomplete)
	}
	if e.completed[index] {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectCompleted)
	}
	e.current = index
	e.question = 0
	e.ensureAttemptLocked(index)
	e.publishLocked()
	return nil
}

// SubmitCurrentSubject completes the active subject and flushes its answers.
func (e *Engine) SubmitCurrentSubject() error {
	const op = "app.SubmitCurrentSubject"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	if e.completed[e.current] {
		return domain.E(domain.CategoryValidation, op, domain.ErrSubjectCompleted)
	}
	e.completeSubjectLocked(e.current, domain.ReasonSubmitted)
	e.finishIfDoneLocked()
	e.publishLocked()
	return nil
}

// SubmitAll closes every subject and starts the final submission.
func (e *Engine) SubmitAll() error {
	const op = "app.SubmitAll"
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireInProgressLocked(op); err != nil {
		return err
	}
	e.beginSubmitLocked(domain.ReasonSubmitted)
	e.publishLocked()
	return nil
}

// Cancel aborts the session before any subject has been completed. Attempt
// records already created stay in progress for a later resume.
func (e *Engine) Cancel() error {
	const op = "app.Cancel"
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case domain.StateAwaitingConsent, domain.StateInProgress:
	default:
		return domain.E(domain.CategoryState, op, domain.ErrCancelNotAllowed)
	}
	for i, done := range e.completed {
		if done && e.reasons[i] != domain.ReasonEmpty {
			return domain.E(domain.CategoryState, op, domain.ErrCancelNotAllowed)
		}
	}

	e.cancelLocked("session cancelled")
	return nil
}

// ExpireConsent cancels the session if monitoring consent never arrived.
// It reports whether the session was cancelled.
func (e *Engine) ExpireConsent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateAwaitingConsent {
		return false
	}
	e.cancelLocked("consent window expired")
	return true
}

func (e *Engine) cancelLocked(reason string) {
	e.state = domain.StateCancelled
	e.stopMonitoringLocked()
	e.syncer.close()
	e.log.Info(reason)
	e.publishLocked()
	close(e.done)
}

// forceSubmit is the integrity monitor's escalation hook.
func (e *Engine) forceSubmit(score int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateInProgress {
		return
	}
	e.forced = true
	e.log.WithField("score", score).Warn("forcing submission")
	e.beginSubmitLocked(domain.ReasonIntegrity)
	e.publishLocked()
}

func (e *Engine) reportInfraction(kind domain.InfractionKind, metadata map[string]string) {
	e.monitor.Report(kind, metadata)

	e.mu.Lock()
	e.publishLocked()
	e.mu.Unlock()
}

func (e *Engine) markSyncPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.syncPending {
		e.syncPending = true
		e.publishLocked()
	}
}

func (e *Engine) requireInProgressLocked(op string) error {
	switch e.state {
	case domain.StateInProgress:
		return nil
	case domain.StateAwaitingConsent, domain.StateInitializing:
		return domain.E(domain.CategoryState, op, domain.ErrInvalidState)
	}
	return e.closedErr(op)
}

func (e *Engine) closedErr(op string) error {
	return domain.E(domain.CategoryState, op, domain.ErrSessionClosed)
}

func (e *Engine) upsertRequest(i int) domain.AttemptUpsert {
	subject := e.bundle.Subjects[i]
	return domain.AttemptUpsert{
		StudentID:      e.studentID,
		SubjectID:      subject.ID,
		QuizID:         e.bundle.Quizzes[subject.ID],
		Mode:           e.cfg.Mode,
		TotalQuestions: len(e.questions[i]),
		Monitoring: domain.MonitoringFlags{
			Webcam: e.access.Webcam,
			Screen: e.access.Screen,
			Audio:  e.access.Audio,
		},
		At: e.now(),
	}
}

func (e *Engine) ensureAttemptLocked(i int) {
	if i < 0 || len(e.questions[i]) == 0 {
		return
	}
	e.syncer.upsert(e.upsertRequest(i))
}

func (e *Engine) answersForLocked(i int) []domain.AnswerRecord {
	var out []domain.AnswerRecord
	for _, q := range e.questions[i] {
		if opt, ok := e.answers[q.ID]; ok {
			out = append(out, domain.AnswerRecord{QuestionID: q.ID, SelectedOption: opt})
		}
	}
	return out
}

// completeSubjectLocked closes subject i. While the session is still running
// its answers are handed to the syncer right after the subject is marked.
func (e *Engine) completeSubjectLocked(i int, reason domain.CompletionReason) {
	if e.completed[i] {
		return
	}
	e.completed[i] = true
	e.reasons[i] = reason
	e.timers.Freeze(i)
	if e.state == domain.StateInProgress && len(e.questions[i]) > 0 {
		e.syncer.flush(e.upsertRequest(i), e.answersForLocked(i))
	}
}

func (e *Engine) finishIfDoneLocked() {
	for _, done := range e.completed {
		if !done {
			return
		}
	}
	e.beginSubmitLocked(domain.ReasonFinished)
}

func (e *Engine) beginSubmitLocked(reason domain.CompletionReason) {
	e.state = domain.StateSubmitting
	e.stopMonitoringLocked()
	for i := range e.completed {
		if !e.completed[i] {
			e.completed[i] = true
			e.reasons[i] = reason
			e.timers.Freeze(i)
		}
	}

	answers := make(map[string]domain.Option, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}
	result := grading.Calculate(e.bundle.Subjects, e.bundle.Questions, answers, e.now())
	e.result = &result
	e.log.WithFields(logrus.Fields{
		"reason":  reason,
		"passed":  result.OverallPassed,
		"answers": len(answers),
	}).Info("submitting assessment")

	items := make([]finalItem, len(e.bundle.Subjects))
	for i, s := range e.bundle.Subjects {
		items[i] = finalItem{
			upsert:  e.upsertRequest(i),
			answers: e.answersForLocked(i),
			score:   result.SubjectResults[s.ID].Percentage,
		}
	}
	e.syncer.finalize(items, e.finalized)
	e.syncer.close()
}

func (e *Engine) finalized(pending bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = domain.StateCompleted
	e.syncPending = pending
	if pending {
		e.log.Warn("assessment completed with sync pending")
	} else {
		e.log.Info("assessment completed")
	}
	e.publishLocked()
	close(e.done)
}

// stopMonitoringLocked closes the interlock right away and tears detectors
// and streams down off the caller's goroutine, which may be a detector.
func (e *Engine) stopMonitoringLocked() {
	e.disable()
	detectors := e.detectors
	if detectors != nil {
		detectors.Disable()
	}
	e.teardown.Do(func() {
		go func() {
			if detectors != nil {
				detectors.Stop()
			}
			e.media.ReleaseAll()
			e.monitor.Close()
		}()
	})
}

// Done is closed once the session reaches completed or cancelled.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// State returns the current state.
func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result returns the graded result once submission has started.
func (e *Engine) Result() (domain.QuizResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return domain.QuizResult{}, domain.E(domain.CategoryState, "app.Result", domain.ErrResultNotReady)
	}
	return *e.result, nil
}

// CheatingScore exposes the integrity score for audit.
func (e *Engine) CheatingScore() int {
	return e.monitor.Score()
}

// Infractions returns the integrity log.
func (e *Engine) Infractions() []domain.Infraction {
	return e.monitor.Log()
}

// ReportInfraction lets trusted callers add an infraction directly. It is
// ignored once monitoring has stopped.
func (e *Engine) ReportInfraction(kind domain.InfractionKind, metadata map[string]string) {
	if e.interlock.Err() != nil {
		return
	}
	e.reportInfraction(kind, metadata)
}

// Snapshot returns the current read model.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel receiving snapshots; the caller must cancel it.
func (e *Engine) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	// the channel is fresh, so this never blocks
	ch <- e.snapshotLocked()
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) publishLocked() {
	snap := e.snapshotLocked()
	for ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscribers only need the latest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (e *Engine) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:        e.id,
		StudentID:        e.studentID,
		State:            e.state,
		CurrentSubject:   e.current,
		CurrentQuestion:  e.question,
		Subjects:         make([]domain.SubjectProgress, len(e.bundle.Subjects)),
		CheatingScore:    e.monitor.Score(),
		DegradedCoverage: e.state != domain.StateAwaitingConsent && !e.access.Audio,
		ForcedSubmission: e.forced,
		SyncPending:      e.syncPending,
		Result:           e.result,
		UpdatedAt:        e.now().UTC(),
	}
	for i, s := range e.bundle.Subjects {
		answered := 0
		for _, q := range e.questions[i] {
			if _, ok := e.answers[q.ID]; ok {
				answered++
			}
		}
		snap.Subjects[i] = domain.SubjectProgress{
			Subject:          s,
			Questions:        len(e.questions[i]),
			Answered:         answered,
			RemainingSeconds: e.timers.Remaining(i),
			Completed:        e.completed[i],
			Reason:           e.reasons[i],
		}
	}
	if e.state == domain.StateInProgress && e.current >= 0 && e.question < len(e.questions[e.current]) {
		q := e.questions[e.current][e.question]
		snap.Question = &domain.PublicQuestion{
			ID:       q.ID,
			Text:     q.Text,
			OptionA:  q.OptionA,
			OptionB:  q.OptionB,
			OptionC:  q.OptionC,
			OptionD:  q.OptionD,
			Selected: e.answers[q.ID],
		}
	}
	return snap
}
