package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/integrity"
	"proctored-quiz-engine/internal/media"
	"proctored-quiz-engine/internal/timer"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
}

// Session pairs one engine with the capture bridge its browser talks to.
type Session struct {
	ID        string
	StudentID string
	Engine    *Engine
	Media     *media.Bridge
	CreatedAt time.Time
}

// StartRequest is what a learner sends to begin an assessment.
type StartRequest struct {
	StudentID string
	Courses   []string
	ClassName string
	Mode      string
}

// ServiceConfig holds the per-session settings applied by ProctorService.
type ServiceConfig struct {
	Engine        EngineConfig
	QuestionLimit int
	Tick          time.Duration
	// Retention keeps finished sessions readable before eviction.
	Retention time.Duration
	// ConsentTimeout cancels sessions still waiting for monitoring consent.
	ConsentTimeout time.Duration
}

// ServiceDeps are the shared collaborators of every session.
type ServiceDeps struct {
	Sessions SessionRepository
	Catalog  catalog.Service
	Gateway  Gateway
	Recorder integrity.Recorder
	// NewClock builds the tick source of a session; a wall-clock ticker by default.
	NewClock func() timer.Clock
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// ProctorService contains the session lifecycle use cases.
type ProctorService struct {
	cfg  ServiceConfig
	deps ServiceDeps
	log  logrus.FieldLogger

	// persistence outlives requests; cancelled by Close
	persistCtx context.Context
	stop       context.CancelFunc
	evictions  sync.WaitGroup
}

func NewProctorService(cfg ServiceConfig, deps ServiceDeps) *ProctorService {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewClock == nil {
		tick := cfg.Tick
		deps.NewClock = func() timer.Clock { return timer.NewTicker(tick) }
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.ConsentTimeout <= 0 {
		cfg.ConsentTimeout = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProctorService{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Log,
		persistCtx: ctx,
		stop:       cancel,
	}
}

// Start loads the catalog and creates a session waiting for monitoring consent.
func (s *ProctorService) Start(ctx context.Context, req StartRequest) (*Session, error) {
	const op = "app.Start"
	if req.StudentID == "" {
		return nil, domain.E(domain.CategoryValidation, op, domain.ErrStudentRequired)
	}
	bundle, err := catalog.Load(ctx, s.deps.Catalog, catalog.Request{
		Courses:       req.Courses,
		ClassName:     req.ClassName,
		QuestionLimit: s.cfg.QuestionLimit,
	})
	if err != nil {
		s.log.WithError(err).WithField("student", req.StudentID).Warn("session initialization failed")
		return nil, err
	}

	id := uuid.NewString()
	bridge := media.NewBridge(s.log.WithField("session", id))
	cfg := s.cfg.Engine
	if req.Mode != "" {
		cfg.Mode = req.Mode
	}
	engine, err := NewEngine(id, req.StudentID, bundle, cfg, EngineDeps{
		Gateway:    s.deps.Gateway,
		Media:      bridge,
		Clock:      s.deps.NewClock(),
		Recorder:   s.deps.Recorder,
		Log:        s.log,
		Now:        s.deps.Now,
		PersistCtx: s.persistCtx,
	})
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		StudentID: req.StudentID,
		Engine:    engine,
		Media:     bridge,
		CreatedAt: s.deps.Now(),
	}
	s.deps.Sessions.Put(session)
	s.evictWhenDone(session)
	return session, nil
}

func (s *ProctorService) evictWhenDone(session *Session) {
	s.evictions.Add(1)
	go func() {
		defer s.evictions.Done()
		log := s.log.WithField("session", session.ID)

		consent := time.NewTimer(s.cfg.ConsentTimeout)
		defer consent.Stop()
		select {
		case <-session.Engine.Done():
		case <-s.persistCtx.Done():
			return
		case <-consent.C:
			if session.Engine.ExpireConsent() {
				s.deps.Sessions.Delete(session.ID)
				log.Info("session dropped, consent never given")
				return
			}
			select {
			case <-session.Engine.Done():
			case <-s.persistCtx.Done():
				return
			}
		}
		retain := time.NewTimer(s.cfg.Retention)
		defer retain.Stop()
		select {
		case <-retain.C:
		case <-s.persistCtx.Done():
		}
		s.deps.Sessions.Delete(session.ID)
		log.Debug("session evicted")
	}()
}

// Get returns a live or recently finished session.
func (s *ProctorService) Get(_ context.Context, id string) (*Session, error) {
	session, ok := s.deps.Sessions.Get(id)
	if !ok {
		return nil, domain.E(domain.CategoryNotFound, "app.Get", domain.ErrSessionNotFound)
	}
	return session, nil
}

// Consent delivers the browser's capture decision and starts the assessment
// when camera and screen were granted.
func (s *ProctorService) Consent(ctx context.Context, id string, access media.Access) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.Media.Grant(access)
	return session.Engine.Consent(ctx)
}

// Signal relays one browser integrity event to the session's detectors.
func (s *ProctorService) Signal(ctx context.Context, id string, sig media.Signal) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sig.At.IsZero() {
		sig.At = s.deps.Now()
	}
	session.Media.Emit(sig)
	return nil
}

// Result returns the graded outcome once submission has started.
func (s *ProctorService) Result(ctx context.Context, id string) (domain.QuizResult, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return domain.QuizResult{}, err
	}
	return session.Engine.Result()
}

// Cancel aborts a session that has not completed any subject and drops it.
func (s *ProctorService) Cancel(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := session.Engine.Cancel(); err != nil {
		return err
	}
	s.deps.Sessions.Delete(id)
	return nil
}

// Subscribe returns a channel that receives session snapshots.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ProctorService) Subscribe(ctx context.Context, id string) (<-chan domain.Snapshot, func(), error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Engine.Subscribe()
	return ch, cancel, nil
}

// Close stops eviction timers and abandons in-flight persistence.
func (s *ProctorService) Close() {
	s.stop()
	s.evictions.Wait()
}
