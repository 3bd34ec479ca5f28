// Package grading turns captured answers into per-subject and overall grades.
package grading

import (
	"math"
	"time"

	"proctored-quiz-engine/internal/domain"
)

// PassMark is the minimum percentage for a subject to count as passed.
const PassMark = 55

type band struct {
	min   int
	grade string
}

var bands = []band{
	{80, "A"},
	{70, "B"},
	{55, "C"},
	{40, "D"},
	{30, "E"},
	{0, "F"},
}

// Grade maps a percentage onto the A..F banding.
func Grade(percentage int) string {
	for _, b := range bands {
		if percentage >= b.min {
			return b.grade
		}
	}
	return "F"
}

// Calculate grades answers against the question keys. It performs no I/O;
// identical inputs produce identical results.
func Calculate(subjects []domain.Subject, questions []domain.Question, answers map[string]domain.Option, at time.Time) domain.QuizResult {
	bySubject := make(map[string][]domain.Question, len(subjects))
	for _, q := range questions {
		bySubject[q.SubjectID] = append(bySubject[q.SubjectID], q)
	}

	result := domain.QuizResult{
		SubjectResults: make(map[string]domain.SubjectResult, len(subjects)),
		OverallPassed:  len(subjects) > 0,
		Timestamp:      at.UTC(),
	}
	for _, subject := range subjects {
		sr := gradeSubject(subject.ID, bySubject[subject.ID], answers)
		result.SubjectResults[subject.ID] = sr
		if !sr.Passed {
			result.OverallPassed = false
		}
	}
	return result
}

func gradeSubject(subjectID string, questions []domain.Question, answers map[string]domain.Option) domain.SubjectResult {
	correct := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectOption {
			correct++
		}
	}

	total := len(questions)
	percentage := 0
	if total > 0 {
		percentage = int(math.Round(100 * float64(correct) / float64(total)))
	}
	return domain.SubjectResult{
		SubjectID:  subjectID,
		Correct:    correct,
		Total:      total,
		Percentage: percentage,
		Passed:     percentage >= PassMark,
		Grade:      Grade(percentage),
	}
}
