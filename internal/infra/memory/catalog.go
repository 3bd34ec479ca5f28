package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
)

// Catalog is an in-memory catalog.Service (useful for tests/demos).
type Catalog struct {
	seed catalog.Seed

	mu       sync.Mutex
	quizzes  []domain.Quiz
	nextQuiz int
}

func NewCatalog(seed catalog.Seed) *Catalog {
	return &Catalog{seed: seed}
}

func (c *Catalog) ResolveSubjectIDs(_ context.Context, names []string) ([]domain.Subject, error) {
	var out []domain.Subject
	seen := make(map[string]bool)
	for _, name := range names {
		for _, s := range c.seed.Subjects {
			if !strings.EqualFold(strings.TrimSpace(name), s.CatalogName) || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			s.DisplayName = name
			out = append(out, s)
			break
		}
	}
	return out, nil
}

func (c *Catalog) ResolveClassID(_ context.Context, name string) (string, bool, error) {
	for className, id := range c.seed.Classes {
		if strings.EqualFold(className, strings.TrimSpace(name)) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (c *Catalog) ListTopics(_ context.Context, subjectIDs []string, classID string) ([]domain.Topic, error) {
	wanted := toSet(subjectIDs)
	var out []domain.Topic
	for _, t := range c.seed.Topics {
		if !wanted[t.SubjectID] {
			continue
		}
		if classID != "" && t.ClassID != "" && t.ClassID != classID {
			continue
		}
		out = append(out, t.Topic)
	}
	return out, nil
}

// ListOrCreateQuizzes creates one quiz per subject and topic pair on first use.
func (c *Catalog) ListOrCreateQuizzes(_ context.Context, subjectIDs, topicIDs []string) ([]domain.Quiz, error) {
	subjects := toSet(subjectIDs)
	topics := toSet(topicIDs)

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Quiz
	for _, t := range c.seed.Topics {
		if !topics[t.ID] || !subjects[t.SubjectID] {
			continue
		}
		quiz, ok := c.findQuizLocked(t.SubjectID, t.ID)
		if !ok {
			c.nextQuiz++
			quiz = domain.Quiz{ID: "quiz-" + strconv.Itoa(c.nextQuiz), SubjectID: t.SubjectID, TopicID: t.ID}
			c.quizzes = append(c.quizzes, quiz)
		}
		out = append(out, quiz)
	}
	return out, nil
}

func (c *Catalog) findQuizLocked(subjectID, topicID string) (domain.Quiz, bool) {
	for _, q := range c.quizzes {
		if q.SubjectID == subjectID && q.TopicID == topicID {
			return q, true
		}
	}
	return domain.Quiz{}, false
}

// FetchQuestions returns questions of the given quizzes in seed order.
func (c *Catalog) FetchQuestions(_ context.Context, quizIDs []string, limit int) ([]domain.Question, error) {
	ids := toSet(quizIDs)

	c.mu.Lock()
	byPair := make(map[[2]string]string)
	for _, q := range c.quizzes {
		if ids[q.ID] {
			byPair[[2]string{q.SubjectID, q.TopicID}] = q.ID
		}
	}
	c.mu.Unlock()

	var out []domain.Question
	for _, q := range c.seed.Questions {
		quizID, ok := byPair[[2]string{q.SubjectID, q.TopicID}]
		if !ok {
			continue
		}
		q.QuizID = quizID
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Quizzes returns the quiz rows created so far.
func (c *Catalog) Quizzes() []domain.Quiz {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Quiz, len(c.quizzes))
	copy(out, c.quizzes)
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
