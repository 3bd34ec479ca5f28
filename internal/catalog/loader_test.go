package catalog

import (
	"context"
	"errors"
	"testing"

	"proctored-quiz-engine/internal/domain"
)

type stubService struct {
	fetchErr error
	fetched  [][]string
}

func (s *stubService) ResolveSubjectIDs(_ context.Context, names []string) ([]domain.Subject, error) {
	var out []domain.Subject
	for _, n := range names {
		if n == "Mathematics" {
			out = append(out, domain.Subject{ID: "math", CatalogName: n, DisplayName: n})
		}
	}
	return out, nil
}

func (s *stubService) ResolveClassID(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (s *stubService) ListTopics(context.Context, []string, string) ([]domain.Topic, error) {
	return []domain.Topic{{ID: "alg", SubjectID: "math"}}, nil
}

func (s *stubService) ListOrCreateQuizzes(context.Context, []string, []string) ([]domain.Quiz, error) {
	return []domain.Quiz{{ID: "quiz-1", SubjectID: "math", TopicID: "alg"}}, nil
}

func (s *stubService) FetchQuestions(_ context.Context, quizIDs []string, _ int) ([]domain.Question, error) {
	s.fetched = append(s.fetched, quizIDs)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return []domain.Question{{ID: "q1", QuizID: "quiz-1"}}, nil
}

func TestLoadFillsMissingSubjectIDs(t *testing.T) {
	svc := &stubService{}
	bundle, err := Load(context.Background(), svc, Request{Courses: []string{"Mathematics"}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bundle.Questions) != 1 || bundle.Questions[0].SubjectID != "math" {
		t.Fatalf("expected question attributed to math, got %+v", bundle.Questions)
	}
	if bundle.Quizzes["math"] != "quiz-1" {
		t.Fatalf("expected quiz mapping, got %v", bundle.Quizzes)
	}
}

func TestLoadFailsClosed(t *testing.T) {
	ctx := context.Background()
	if _, err := Load(ctx, &stubService{}, Request{}); !errors.Is(err, domain.ErrNoSubjects) {
		t.Fatalf("expected no subjects for empty courses, got %v", err)
	}
	if _, err := Load(ctx, &stubService{}, Request{Courses: []string{"Art"}}); !errors.Is(err, domain.ErrNoSubjects) {
		t.Fatalf("expected no subjects for unknown course, got %v", err)
	}

	boom := errors.New("catalog down")
	_, err := Load(ctx, &stubService{fetchErr: boom}, Request{Courses: []string{"Mathematics"}})
	if !errors.Is(err, boom) || domain.CategoryOf(err) != domain.CategoryInitialization {
		t.Fatalf("expected initialization error wrapping fetch failure, got %v", err)
	}
}
