package grading

import (
	"encoding/json"
	"testing"
	"time"

	"proctored-quiz-engine/internal/domain"
)

func sampleSubjects() []domain.Subject {
	return []domain.Subject{
		{ID: "math", DisplayName: "Math", CatalogName: "Mathematics"},
		{ID: "eng", DisplayName: "English", CatalogName: "English Language"},
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", SubjectID: "math", CorrectOption: domain.OptionA},
		{ID: "q2", SubjectID: "math", CorrectOption: domain.OptionC},
		{ID: "q3", SubjectID: "eng", CorrectOption: domain.OptionC},
		{ID: "q4", SubjectID: "eng", CorrectOption: domain.OptionD},
	}
}

func TestCalculateMixedResult(t *testing.T) {
	answers := map[string]domain.Option{"q1": "A", "q2": "B", "q3": "C", "q4": "D"}
	result := Calculate(sampleSubjects(), sampleQuestions(), answers, time.Unix(0, 0))

	math := result.SubjectResults["math"]
	if math.Correct != 1 || math.Total != 2 || math.Percentage != 50 || math.Passed {
		t.Fatalf("unexpected math result %+v", math)
	}
	if math.Grade != "D" {
		t.Fatalf("expected 50%% to band as D, got %s", math.Grade)
	}
	eng := result.SubjectResults["eng"]
	if eng.Correct != 2 || eng.Total != 2 || eng.Percentage != 100 || !eng.Passed || eng.Grade != "A" {
		t.Fatalf("unexpected english result %+v", eng)
	}
	if result.OverallPassed {
		t.Fatalf("expected overall fail when one subject fails")
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	answers := map[string]domain.Option{"q1": "A", "q3": "B"}
	at := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	first, _ := json.Marshal(Calculate(sampleSubjects(), sampleQuestions(), answers, at))
	for i := 0; i < 10; i++ {
		again, _ := json.Marshal(Calculate(sampleSubjects(), sampleQuestions(), answers, at))
		if string(first) != string(again) {
			t.Fatalf("result changed between runs:\n%s\n%s", first, again)
		}
	}
}

func TestCalculateEmptySubject(t *testing.T) {
	subjects := []domain.Subject{{ID: "bio"}}
	result := Calculate(subjects, nil, nil, time.Now())
	bio := result.SubjectResults["bio"]
	if bio.Total != 0 || bio.Percentage != 0 || bio.Passed {
		t.Fatalf("expected zero result for empty subject, got %+v", bio)
	}
	if result.OverallPassed {
		t.Fatalf("expected overall fail")
	}
}

func TestGradeBands(t *testing.T) {
	cases := map[int]string{100: "A", 80: "A", 79: "B", 70: "B", 69: "C", 55: "C", 54: "D", 40: "D", 39: "E", 30: "E", 29: "F", 0: "F"}
	for pct, want := range cases {
		if got := Grade(pct); got != want {
			t.Fatalf("Grade(%d) = %s, want %s", pct, got, want)
		}
	}
}

func TestPercentageRounds(t *testing.T) {
	subjects := []domain.Subject{{ID: "s"}}
	questions := []domain.Question{
		{ID: "a", SubjectID: "s", CorrectOption: "A"},
		{ID: "b", SubjectID: "s", CorrectOption: "A"},
		{ID: "c", SubjectID: "s", CorrectOption: "A"},
	}
	result := Calculate(subjects, questions, map[string]domain.Option{"a": "A", "b": "A"}, time.Now())
	if got := result.SubjectResults["s"].Percentage; got != 67 {
		t.Fatalf("expected 2/3 to round to 67, got %d", got)
	}
}
