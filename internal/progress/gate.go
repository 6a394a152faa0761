// Package progress decides what a graded attempt means for course progression.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/quizgate/internal/quiz"
)

// Unlock asks the course collaborator to open the module after ModuleID.
type Unlock struct {
	EnrollmentID string    `json:"enrollment_id"`
	ModuleID     string    `json:"module_id"`
	QuizID       string    `json:"quiz_id"`
	AttemptID    string    `json:"attempt_id"`
	At           time.Time `json:"at"`
}

type Unlocker interface {
	UnlockNext(ctx context.Context, u Unlock) error
}

// Notice tells the notification collaborator about a verdict.
type Notice struct {
	EnrollmentID   string `json:"enrollment_id"`
	ModuleID       string `json:"module_id"`
	QuizID         string `json:"quiz_id"`
	AttemptID      string `json:"attempt_id"`
	AttemptNumber  int    `json:"attempt_number"`
	Score          int    `json:"score"`
	Passed         bool   `json:"passed"`
	RetryAvailable bool   `json:"retry_available"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type Decision struct {
	AttemptID      string `json:"attempt_id"`
	Passed         bool   `json:"passed"`
	ModuleUnlocked bool   `json:"module_unlocked"`
	RetryAvailable bool   `json:"retry_available"`
	AttemptsUsed   int    `json:"attempts_used"`
	MaxAttempts    int    `json:"max_attempts"` // 0 = unlimited
}

type Gate struct {
	maxAttempts int
	unlocker    Unlocker
	notifier    Notifier
	log         logrus.FieldLogger
}

// NewGate builds a gate. maxAttempts <= 0 means unlimited retries.
// unlocker and notifier may be nil.
func NewGate(maxAttempts int, unlocker Unlocker, notifier Notifier, log logrus.FieldLogger) *Gate {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Gate{maxAttempts: maxAttempts, unlocker: unlocker, notifier: notifier, log: log}
}

// Decide reads the verdict of a graded attempt. history is every attempt of
// the same enrollment on the quiz; nil judges the attempt alone. It has no
// side effects.
func (g *Gate) Decide(a quiz.Attempt, history []quiz.Attempt) (Decision, error) {
	if a.Status != quiz.StatusGraded || a.Passed == nil {
		return Decision{}, quiz.ErrInvalidState
	}
	d := Decision{
		AttemptID:    a.ID,
		Passed:       *a.Passed,
		AttemptsUsed: max(a.AttemptNumber, len(history)),
		MaxAttempts:  g.maxAttempts,
	}
	if d.Passed {
		d.ModuleUnlocked = true
		return d, nil
	}
	d.RetryAvailable = !anyPassed(history) && g.underCap(d.AttemptsUsed)
	return d, nil
}

// CanStart refuses a new attempt once one has passed or the cap is reached.
func (g *Gate) CanStart(_ context.Context, _ quiz.Quiz, history []quiz.Attempt) error {
	if anyPassed(history) || !g.underCap(len(history)) {
		return quiz.ErrRetryNotAllowed
	}
	return nil
}

func (g *Gate) underCap(used int) bool {
	return g.maxAttempts == 0 || used < g.maxAttempts
}

func anyPassed(history []quiz.Attempt) bool {
	for _, h := range history {
		if h.Status == quiz.StatusGraded && h.Passed != nil && *h.Passed {
			return true
		}
	}
	return false
}

// AttemptGraded applies the decision: unlock on pass, notify always.
func (g *Gate) AttemptGraded(ctx context.Context, q quiz.Quiz, a quiz.Attempt) error {
	d, err := g.Decide(a, nil)
	if err != nil {
		return err
	}
	var errs []error
	if d.ModuleUnlocked && g.unlocker != nil {
		u := Unlock{EnrollmentID: a.EnrollmentID, ModuleID: q.ModuleID, QuizID: q.ID, AttemptID: a.ID, At: time.Now().UTC()}
		if a.SubmittedAt != nil {
			u.At = *a.SubmittedAt
		}
		if err := g.unlocker.UnlockNext(ctx, u); err != nil {
			errs = append(errs, err)
		} else {
			g.log.WithFields(logrus.Fields{"enrollment_id": a.EnrollmentID, "module_id": q.ModuleID}).Info("module unlocked")
		}
	}
	if g.notifier != nil {
		n := Notice{
			EnrollmentID:   a.EnrollmentID,
			ModuleID:       q.ModuleID,
			QuizID:         q.ID,
			AttemptID:      a.ID,
			AttemptNumber:  a.AttemptNumber,
			Score:          *a.Score,
			Passed:         d.Passed,
			RetryAvailable: d.RetryAvailable,
		}
		if err := g.notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unlockers fans one unlock out to every collaborator.
type Unlockers []Unlocker

func (us Unlockers) UnlockNext(ctx context.Context, u Unlock) error {
	var errs []error
	for _, x := range us {
		if err := x.UnlockNext(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
