package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a proctoring session has not been started.
	ErrSessionNotFound = errors.New("proctoring session not found")
	// ErrNoSubjects indicates none of the registered courses resolved to a catalog subject.
	ErrNoSubjects = errors.New("no registered course matches a catalog subject")
	// ErrNoTopics indicates the resolved subjects have no topics.
	ErrNoTopics = errors.New("no topics available for the selected subjects")
	// ErrNoQuestions indicates the catalog returned no questions for any subject.
	ErrNoQuestions = errors.New("no questions available for this assessment")
	// ErrConsentRequired is returned while camera or screen access is missing.
	ErrConsentRequired = errors.New("camera and screen sharing must be allowed to start the assessment")
	ErrStudentRequired = errors.New("student id is required")
	ErrInvalidOption   = errors.New("answer must be one of A, B, C or D")
	ErrUnknownQuestion = errors.New("question is not part of this assessment")
	// ErrSubjectIncomplete blocks switching away from an unfinished subject.
	ErrSubjectIncomplete = errors.New("finish the current subject before switching")
	ErrSubjectCompleted  = errors.New("subject has already been submitted")
	ErrSubjectOutOfRange = errors.New("subject index out of range")
	// ErrSessionClosed is returned for any mutation after the session became read-only.
	ErrSessionClosed = errors.New("assessment is closed")
	// ErrInvalidState indicates an operation that is not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in the current state")
	// ErrCancelNotAllowed is returned once any subject has been completed.
	ErrCancelNotAllowed = errors.New("assessment can no longer be cancelled")
	// ErrResultNotReady is returned while no result has been computed yet.
	ErrResultNotReady = errors.New("result not available yet")
)

// Category classifies errors before they cross the engine boundary.
type Category string

const (
	CategoryInitialization Category = "initialization"
	CategoryConsent        Category = "consent"
	CategoryValidation     Category = "validation"
	CategoryState          Category = "state"
	CategoryPersistence    Category = "persistence"
	CategoryNotFound       Category = "not_found"
	CategoryInternal       Category = "internal"
)

// Error attaches a category and the failing operation to an underlying error.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a category. A nil err yields nil.
func E(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// CategoryOf classifies err, falling back to the sentinel it wraps.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	switch {
	case errors.Is(err, ErrNoSubjects), errors.Is(err, ErrNoTopics), errors.Is(err, ErrNoQuestions):
		return CategoryInitialization
	case errors.Is(err, ErrConsentRequired):
		return CategoryConsent
	case errors.Is(err, ErrInvalidOption), errors.Is(err, ErrUnknownQuestion), errors.Is(err, ErrStudentRequired),
		errors.Is(err, ErrSubjectIncomplete), errors.Is(err, ErrSubjectCompleted),
		errors.Is(err, ErrSubjectOutOfRange):
		return CategoryValidation
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrCancelNotAllowed), errors.Is(err, ErrResultNotReady):
		return CategoryState
	case errors.Is(err, ErrSessionNotFound):
		return CategoryNotFound
	}
	return CategoryInternal
}

// Message returns the text that is safe to show to a learner.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Category == CategoryInternal || e.Category == CategoryPersistence {
			return "something went wrong, please try again"
		}
		return e.Err.Error()
	}
	if CategoryOf(err) == CategoryInternal {
		return "something went wrong, please try again"
	}
	return err.Error()
}
