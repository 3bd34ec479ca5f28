package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"

	"proctored-quiz-engine/internal/domain"
)

// Gateway implements app.Gateway on top of Postgres.
type Gateway struct {
	db DB
}

func NewGateway(db DB) *Gateway {
	return &Gateway{db: db}
}

// UpsertAttempt keeps one attempt per student, subject and calendar month.
func (g *Gateway) UpsertAttempt(ctx context.Context, req domain.AttemptUpsert) (string, error) {
	var id string
	err := g.db.QueryRow(ctx, `
		INSERT INTO attempts (student_id, subject_id, quiz_id, period_start, mode, total_questions,
		                      webcam, screen, audio, status, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, subject_id, period_start) DO UPDATE SET
			quiz_id = EXCLUDED.quiz_id,
			mode = EXCLUDED.mode,
			total_questions = EXCLUDED.total_questions,
			webcam = EXCLUDED.webcam,
			screen = EXCLUDED.screen,
			audio = EXCLUDED.audio,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		req.StudentID, req.SubjectID, req.QuizID, domain.PeriodStart(req.At), req.Mode, req.TotalQuestions,
		req.Monitoring.Webcam, req.Monitoring.Screen, req.Monitoring.Audio,
		string(domain.AttemptInProgress), req.At.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert attempt: %w", err)
	}
	return id, nil
}

func (g *Gateway) InsertAnswers(ctx context.Context, attemptID string, answers []domain.AnswerRecord) error {
	if len(answers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(`
			INSERT INTO attempt_answers (attempt_id, question_id, selected_option)
			VALUES ($1, $2, $3)
			ON CONFLICT (attempt_id, question_id) DO UPDATE SET
				selected_option = EXCLUDED.selected_option,
				answered_at = now()`,
			attemptID, a.QuestionID, string(a.SelectedOption))
	}
	return execBatch(ctx, g.db, batch, "insert answers")
}

func (g *Gateway) UpdateAttemptStatus(ctx context.Context, attemptID string, status domain.AttemptStatus, score *int) error {
	tag, err := g.db.Exec(ctx, `
		UPDATE attempts SET status = $2, score = COALESCE($3, score), updated_at = now()
		WHERE id = $1`, attemptID, string(status), score)
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update attempt %s: %w", attemptID, pgx.ErrNoRows)
	}
	return nil
}

func (g *Gateway) InsertScoreRecord(ctx context.Context, attemptID, subjectID string, score int) error {
	if _, err := g.db.Exec(ctx, `
		INSERT INTO score_records (attempt_id, subject_id, score) VALUES ($1, $2, $3)`,
		attemptID, subjectID, score); err != nil {
		return fmt.Errorf("insert score record: %w", err)
	}
	return nil
}

// Attempt loads one attempt record.
func (g *Gateway) Attempt(ctx context.Context, attemptID string) (domain.AttemptRecord, error) {
	var rec domain.AttemptRecord
	var quizID *string
	var status string
	err := g.db.QueryRow(ctx, `
		SELECT id, student_id, subject_id, quiz_id, period_start, mode, total_questions,
		       webcam, screen, audio, status, score, updated_at
		FROM attempts WHERE id = $1`, attemptID).Scan(
		&rec.ID, &rec.StudentID, &rec.SubjectID, &quizID, &rec.PeriodStart, &rec.Mode, &rec.TotalQuestions,
		&rec.Monitoring.Webcam, &rec.Monitoring.Screen, &rec.Monitoring.Audio, &status, &rec.Score, &rec.UpdatedAt)
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("load attempt: %w", err)
	}
	if quizID != nil {
		rec.QuizID = *quizID
	}
	rec.Status = domain.AttemptStatus(status)
	return rec, nil
}
