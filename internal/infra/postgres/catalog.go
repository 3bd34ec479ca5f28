package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"

	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
)

// Catalog implements catalog.Service on top of Postgres.
type Catalog struct {
	db DB
}

func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) ResolveSubjectIDs(ctx context.Context, names []string) ([]domain.Subject, error) {
	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(strings.TrimSpace(n))
	}
	rows, err := c.db.Query(ctx, `SELECT id, name FROM subjects WHERE lower(name) = ANY($1)`, lowered)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]domain.Subject)
	for rows.Next() {
		var s domain.Subject
		if err := rows.Scan(&s.ID, &s.CatalogName); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		byName[strings.ToLower(s.CatalogName)] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read subjects: %w", err)
	}

	var out []domain.Subject
	seen := make(map[string]bool)
	for i, key := range lowered {
		s, ok := byName[key]
		if !ok || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		s.DisplayName = names[i]
		out = append(out, s)
	}
	return out, nil
}

func (c *Catalog) ResolveClassID(ctx context.Context, name string) (string, bool, error) {
	var id string
	err := c.db.QueryRow(ctx, `SELECT id FROM classes WHERE lower(name) = lower($1)`, strings.TrimSpace(name)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query class: %w", err)
	}
	return id, true, nil
}

func (c *Catalog) ListTopics(ctx context.Context, subjectIDs []string, classID string) ([]domain.Topic, error) {
	rows, err := c.db.Query(ctx, `
		SELECT id, subject_id, name FROM topics
		WHERE subject_id = ANY($1)
		  AND ($2::text = '' OR class_id IS NULL OR class_id = $2::text)
		ORDER BY name, id`, subjectIDs, classID)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var out []domain.Topic
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListOrCreateQuizzes relies on the (subject_id, topic_id) unique key so
// concurrent sessions never create duplicate rows.
func (c *Catalog) ListOrCreateQuizzes(ctx context.Context, subjectIDs, topicIDs []string) ([]domain.Quiz, error) {
	if _, err := c.db.Exec(ctx, `
		INSERT INTO quizzes (subject_id, topic_id)
		SELECT t.subject_id, t.id FROM topics t
		WHERE t.id = ANY($2) AND t.subject_id = ANY($1)
		ON CONFLICT (subject_id, topic_id) DO NOTHING`, subjectIDs, topicIDs); err != nil {
		return nil, fmt.Errorf("create quizzes: %w", err)
	}

	rows, err := c.db.Query(ctx, `
		SELECT id, subject_id, topic_id FROM quizzes
		WHERE subject_id = ANY($1) AND topic_id = ANY($2)
		ORDER BY created_at, id`, subjectIDs, topicIDs)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.TopicID); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (c *Catalog) FetchQuestions(ctx context.Context, quizIDs []string, limit int) ([]domain.Question, error) {
	if limit <= 0 {
		limit = catalog.DefaultQuestionLimit
	}
	rows, err := c.db.Query(ctx, `
		SELECT q.id, q.subject_id, q.topic_id, z.id, q.text,
		       q.option_a, q.option_b, q.option_c, q.option_d, q.correct_option
		FROM questions q
		JOIN quizzes z ON z.subject_id = q.subject_id AND z.topic_id = q.topic_id
		WHERE z.id = ANY($1)
		ORDER BY q.position, q.id
		LIMIT $2`, quizIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		var correct string
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.TopicID, &q.QuizID, &q.Text,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &correct); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		opt, ok := domain.ParseOption(correct)
		if !ok {
			return nil, fmt.Errorf("question %s: bad correct option %q", q.ID, correct)
		}
		q.CorrectOption = opt
		out = append(out, q)
	}
	return out, rows.Err()
}

// Seed inserts catalog content, skipping rows that already exist.
func (c *Catalog) Seed(ctx context.Context, seed catalog.Seed) error {
	batch := &pgx.Batch{}
	for _, s := range seed.Subjects {
		batch.Queue(`INSERT INTO subjects (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, s.ID, s.CatalogName)
	}
	for name, id := range seed.Classes {
		batch.Queue(`INSERT INTO classes (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, name)
	}
	for _, t := range seed.Topics {
		batch.Queue(`INSERT INTO topics (id, subject_id, class_id, name) VALUES ($1, $2, NULLIF($3, ''), $4) ON CONFLICT DO NOTHING`,
			t.ID, t.SubjectID, t.ClassID, t.Name)
	}
	for i, q := range seed.Questions {
		batch.Queue(`
			INSERT INTO questions (id, subject_id, topic_id, position, text, option_a, option_b, option_c, option_d, correct_option)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT DO NOTHING`,
			q.ID, q.SubjectID, q.TopicID, i, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.CorrectOption))
	}
	return execBatch(ctx, c.db, batch, "seed catalog")
}

func execBatch(ctx context.Context, db DB, batch *pgx.Batch, op string) error {
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
