package quiz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrQuizNotFound             = errors.New("quiz not found")
	ErrQuestionNotFound         = errors.New("question not found")
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrNotEnrolled              = errors.New("not enrolled")
	ErrAttemptAlreadyInProgress = errors.New("attempt already in progress")
	ErrEmptyQuiz                = errors.New("quiz has no questions")
	ErrInvalidState             = errors.New("attempt is not in progress")
	ErrDeadlineExceeded         = errors.New("attempt deadline exceeded")
	ErrInvalidOption            = errors.New("option does not belong to question")
	ErrQuizHasOpenAttempts      = errors.New("quiz has attempts in progress")
	ErrRetryNotAllowed          = errors.New("no retry available")
)

// ValidationError reports caller-correctable authoring input, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ConfigurationError is an author misconfiguration that blocks scoring.
type ConfigurationError struct {
	QuizID string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("quiz %s misconfigured: %s", e.QuizID, e.Reason)
}

// AttemptInProgressError names the attempt the caller should resume.
type AttemptInProgressError struct {
	AttemptID string
}

func (e *AttemptInProgressError) Error() string {
	return fmt.Sprintf("attempt %s already in progress", e.AttemptID)
}

func (e *AttemptInProgressError) Is(target error) bool {
	return target == ErrAttemptAlreadyInProgress
}
