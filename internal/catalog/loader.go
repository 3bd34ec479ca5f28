package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"proctored-quiz-engine/internal/domain"
)

// DefaultQuestionLimit caps the questions fetched per subject.
const DefaultQuestionLimit = 40

// Service is the hosted catalog backend.
type Service interface {
	// ResolveSubjectIDs maps course names onto catalog subjects. Returned
	// subjects carry the requested name as DisplayName.
	ResolveSubjectIDs(ctx context.Context, names []string) ([]domain.Subject, error)
	// ResolveClassID returns false when the class is unknown.
	ResolveClassID(ctx context.Context, name string) (string, bool, error)
	ListTopics(ctx context.Context, subjectIDs []string, classID string) ([]domain.Topic, error)
	// ListOrCreateQuizzes never duplicates a quiz row for the same subject and topic.
	ListOrCreateQuizzes(ctx context.Context, subjectIDs, topicIDs []string) ([]domain.Quiz, error)
	FetchQuestions(ctx context.Context, quizIDs []string, limit int) ([]domain.Question, error)
}

// Request describes what to load for one assessment.
type Request struct {
	Courses       []string
	ClassName     string
	QuestionLimit int
}

// Bundle is the validated, read-only input of an assessment.
type Bundle struct {
	Subjects  []domain.Subject
	Questions []domain.Question
	// Quizzes maps a subject ID to the quiz its attempt is recorded against.
	Quizzes map[string]string
	ClassID string
}

// QuestionsFor returns the questions of one subject in catalog order.
func (b Bundle) QuestionsFor(subjectID string) []domain.Question {
	var out []domain.Question
	for _, q := range b.Questions {
		if q.SubjectID == subjectID {
			out = append(out, q)
		}
	}
	return out
}

// Load runs the initialization pipeline and fails closed when nothing
// assessable resolves. Subjects without questions stay in the bundle.
func Load(ctx context.Context, svc Service, req Request) (Bundle, error) {
	const op = "catalog.Load"
	if len(req.Courses) == 0 {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, domain.ErrNoSubjects)
	}
	limit := req.QuestionLimit
	if limit <= 0 {
		limit = DefaultQuestionLimit
	}

	subjects, err := svc.ResolveSubjectIDs(ctx, req.Courses)
	if err != nil {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, fmt.Errorf("resolve subjects: %w", err))
	}
	if len(subjects) == 0 {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, domain.ErrNoSubjects)
	}
	subjectIDs := make([]string, len(subjects))
	for i, s := range subjects {
		subjectIDs[i] = s.ID
	}

	var classID string
	if req.ClassName != "" {
		id, ok, err := svc.ResolveClassID(ctx, req.ClassName)
		if err != nil {
			return Bundle{}, domain.E(domain.CategoryInitialization, op, fmt.Errorf("resolve class: %w", err))
		}
		if ok {
			classID = id
		}
	}

	topics, err := svc.ListTopics(ctx, subjectIDs, classID)
	if err != nil {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, fmt.Errorf("list topics: %w", err))
	}
	if len(topics) == 0 {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, domain.ErrNoTopics)
	}
	topicIDs := make([]string, len(topics))
	for i, t := range topics {
		topicIDs[i] = t.ID
	}

	quizzes, err := svc.ListOrCreateQuizzes(ctx, subjectIDs, topicIDs)
	if err != nil {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, fmt.Errorf("list quizzes: %w", err))
	}
	quizzesBySubject := make(map[string][]string, len(subjects))
	for _, q := range quizzes {
		quizzesBySubject[q.SubjectID] = append(quizzesBySubject[q.SubjectID], q.ID)
	}

	perSubject := make([][]domain.Question, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range subjects {
		i, quizIDs := i, quizzesBySubject[s.ID]
		if len(quizIDs) == 0 {
			continue
		}
		g.Go(func() error {
			qs, err := svc.FetchQuestions(gctx, quizIDs, limit)
			if err != nil {
				return err
			}
			perSubject[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, fmt.Errorf("fetch questions: %w", err))
	}

	bundle := Bundle{
		Subjects: subjects,
		Quizzes:  make(map[string]string, len(subjects)),
		ClassID:  classID,
	}
	for i, s := range subjects {
		if ids := quizzesBySubject[s.ID]; len(ids) > 0 {
			bundle.Quizzes[s.ID] = ids[0]
		}
		for _, q := range perSubject[i] {
			if q.SubjectID == "" {
				q.SubjectID = s.ID
			}
			if q.SubjectID == s.ID {
				bundle.Questions = append(bundle.Questions, q)
			}
		}
	}
	if len(bundle.Questions) == 0 {
		return Bundle{}, domain.E(domain.CategoryInitialization, op, domain.ErrNoQuestions)
	}
	return bundle, nil
}
