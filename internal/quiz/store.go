package quiz

import (
	"context"
	"time"
)

// QuizStore persists the question bank.
type QuizStore interface {
	CreateQuiz(ctx context.Context, q Quiz) error
	// GetQuiz returns the quiz with questions and options ordered by position,
	// answer key included.
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	UpdateQuizMetadata(ctx context.Context, id, title, description string) error
	UpdateQuizSettings(ctx context.Context, id string, passingScore int, timeLimitMinutes *int) error
	DeleteQuiz(ctx context.Context, id string) error
	AddQuestion(ctx context.Context, q Question) error
	GetQuestion(ctx context.Context, id string) (Question, error)
	AddOption(ctx context.Context, o Option) error
}

// GradeFunc computes a grade from the answers frozen at finalize time.
type GradeFunc func(a Attempt, answers []Answer) (Grade, error)

// AttemptStore persists attempts and answers.
type AttemptStore interface {
	// CreateAttempt inserts a in-progress attempt. It returns an
	// *AttemptInProgressError when (quiz, enrollment) already has one.
	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindInProgress(ctx context.Context, quizID, enrollmentID string) (Attempt, error)
	ListAttempts(ctx context.Context, quizID, enrollmentID string) ([]Attempt, error)
	CountOpenAttempts(ctx context.Context, quizID string) (int, error)

	// UpsertAnswer writes the answer only while the attempt is in progress and
	// before its deadline as of now; otherwise it returns ErrInvalidState.
	UpsertAnswer(ctx context.Context, ans Answer, now time.Time) error
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)

	// Finalize moves an in-progress attempt to graded in one atomic step.
	// won is false when another caller already graded it; the stored attempt
	// is returned either way.
	Finalize(ctx context.Context, attemptID string, now time.Time, grade GradeFunc) (a Attempt, won bool, err error)

	// ListExpired returns in-progress attempts whose deadline is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
}

type Store interface {
	QuizStore
	AttemptStore
}
