package domain

import (
	"strings"
	"time"
)

// Subject is a course being independently timed and graded within a session.
type Subject struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	CatalogName string `json:"catalogName"`
}

// Topic groups quizzes of one subject (optionally scoped to a class).
type Topic struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	Name      string `json:"name"`
}

// Quiz is a catalog row linking a subject and a topic.
type Quiz struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	TopicID   string `json:"topicId"`
}

// Option is one of the four answer letters.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

// ParseOption case-normalizes raw input and reports whether it is one of A..D.
func ParseOption(raw string) (Option, bool) {
	switch opt := Option(strings.ToUpper(strings.TrimSpace(raw))); opt {
	case OptionA, OptionB, OptionC, OptionD:
		return opt, true
	}
	return "", false
}

// Question is an immutable multiple-choice item loaded from the catalog.
type Question struct {
	ID            string `json:"id"`
	SubjectID     string `json:"subjectId"`
	TopicID       string `json:"topicId"`
	QuizID        string `json:"quizId"`
	Text          string `json:"text"`
	OptionA       string `json:"optionA"`
	OptionB       string `json:"optionB"`
	OptionC       string `json:"optionC"`
	OptionD       string `json:"optionD"`
	CorrectOption Option `json:"correctOption"`
}

// AnswerRecord is a captured answer for one question.
type AnswerRecord struct {
	QuestionID     string `json:"questionId"`
	SelectedOption Option `json:"selectedOption"`
}

// AttemptStatus is the persisted status of an attempt record.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// MonitoringFlags records which media streams were available for an attempt.
type MonitoringFlags struct {
	Webcam bool `json:"webcam"`
	Screen bool `json:"screen"`
	Audio  bool `json:"audio"`
}

// AttemptUpsert is the payload used to create or resume an attempt record.
type AttemptUpsert struct {
	StudentID      string
	SubjectID      string
	QuizID         string
	Mode           string
	TotalQuestions int
	Monitoring     MonitoringFlags
	At             time.Time
}

// AttemptRecord is one student x subject x period attempt as stored externally.
type AttemptRecord struct {
	ID             string          `json:"id"`
	StudentID      string          `json:"studentId"`
	SubjectID      string          `json:"subjectId"`
	QuizID         string          `json:"quizId"`
	PeriodStart    time.Time       `json:"periodStart"`
	Mode           string          `json:"mode"`
	TotalQuestions int             `json:"totalQuestions"`
	Monitoring     MonitoringFlags `json:"monitoring"`
	Status         AttemptStatus   `json:"status"`
	Score          *int            `json:"score,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ScoreRecord is the per-subject score history row written at submission.
type ScoreRecord struct {
	AttemptID  string    `json:"attemptId"`
	SubjectID  string    `json:"subjectId"`
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"recordedAt"`
}

// PeriodStart returns the grading window an instant belongs to (calendar month, UTC).
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SubjectResult is the graded outcome for one subject.
type SubjectResult struct {
	SubjectID  string `json:"subjectId"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Passed     bool   `json:"passed"`
	Grade      string `json:"grade"`
}

// QuizResult is computed once at submission and never mutated afterwards.
type QuizResult struct {
	SubjectResults map[string]SubjectResult `json:"subjectResults"`
	OverallPassed  bool                     `json:"overallPassed"`
	Timestamp      time.Time                `json:"timestamp"`
}

// InfractionKind tags the signal source of an infraction.
type InfractionKind string

const (
	InfractionTabSwitch          InfractionKind = "tab_switch"
	InfractionScreenshotAttempt  InfractionKind = "screenshot_attempt"
	InfractionScreenRecordingEnd InfractionKind = "screen_recording_stopped"
	InfractionAudioDropout       InfractionKind = "audio_dropout"
	InfractionWebcamDropout      InfractionKind = "webcam_dropout"
)

// Infraction is one entry in the integrity log.
type Infraction struct {
	Kind     InfractionKind    `json:"kind"`
	Weight   int               `json:"weight"`
	Score    int               `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

// State is a node of the attempt state machine.
type State string

const (
	StateInitializing    State = "initializing"
	StateAwaitingConsent State = "awaiting-monitoring-consent"
	StateInProgress      State = "in-progress"
	StateSubmitting      State = "submitting"
	StateCompleted       State = "completed"
	StateCancelled       State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// CompletionReason records why a subject was closed.
type CompletionReason string

const (
	ReasonFinished  CompletionReason = "finished"
	ReasonSubmitted CompletionReason = "submitted"
	ReasonTimeout   CompletionReason = "timeout"
	ReasonIntegrity CompletionReason = "integrity"
	ReasonEmpty     CompletionReason = "empty"
)

// SubjectProgress is the per-subject part of a snapshot.
type SubjectProgress struct {
	Subject          Subject          `json:"subject"`
	Questions        int              `json:"questions"`
	Answered         int              `json:"answered"`
	RemainingSeconds int              `json:"remainingSeconds"`
	Completed        bool             `json:"completed"`
	Reason           CompletionReason `json:"reason,omitempty"`
}

// Snapshot is the read model pushed to the presentation layer.
type Snapshot struct {
	SessionID        string            `json:"sessionId"`
	StudentID        string            `json:"studentId"`
	State            State             `json:"state"`
	CurrentSubject   int               `json:"currentSubject"`
	CurrentQuestion  int               `json:"currentQuestion"`
	Question         *PublicQuestion   `json:"question,omitempty"`
	Subjects         []SubjectProgress `json:"subjects"`
	CheatingScore    int               `json:"cheatingScore"`
	DegradedCoverage bool              `json:"degradedCoverage"`
	ForcedSubmission bool              `json:"forcedSubmission"`
	SyncPending      bool              `json:"syncPending"`
	Result           *QuizResult       `json:"result,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// PublicQuestion hides the answer key from clients.
type PublicQuestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	OptionA  string `json:"optionA"`
	OptionB  string `json:"optionB"`
	OptionC  string `json:"optionC"`
	OptionD  string `json:"optionD"`
	Selected Option `json:"selected,omitempty"`
}
