// Package attempt runs a student's timed attempt: start, answer, finalize.
package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/quizgate/internal/deadline"
	"github.com/mind-engage/quizgate/internal/grading"
	"github.com/mind-engage/quizgate/internal/quiz"
	syncx "github.com/mind-engage/quizgate/internal/sync"
)

// QuizReader is the read-only side of the question bank.
type QuizReader interface {
	GetQuizForAuthoring(ctx context.Context, id string) (quiz.Quiz, error)
}

// Policy decides whether a new attempt may be started given the history.
type Policy interface {
	CanStart(ctx context.Context, q quiz.Quiz, history []quiz.Attempt) error
}

// GradedHook observes the single transition of an attempt to graded.
type GradedHook interface {
	AttemptGraded(ctx context.Context, q quiz.Quiz, a quiz.Attempt) error
}

// Journal records attempt transitions.
type Journal interface {
	Append(ctx context.Context, e syncx.Event) error
}

// Observer receives counters for attempt activity.
type Observer interface {
	AttemptStarted(quizID string)
	AttemptGraded(quizID string, score int, passed bool)
	AnswerRejected(reason string)
}

type Coordinator struct {
	store    quiz.AttemptStore
	quizzes  QuizReader
	enforcer *deadline.Enforcer
	scorer   *grading.Engine
	policy   Policy
	hook     GradedHook
	journal  Journal
	observer Observer
	log      logrus.FieldLogger
	newID    func() string
}

type Option func(*Coordinator)

func WithPolicy(p Policy) Option         { return func(c *Coordinator) { c.policy = p } }
func WithGradedHook(h GradedHook) Option { return func(c *Coordinator) { c.hook = h } }
func WithJournal(j Journal) Option       { return func(c *Coordinator) { c.journal = j } }
func WithObserver(o Observer) Option     { return func(c *Coordinator) { c.observer = o } }
func WithIDs(f func() string) Option     { return func(c *Coordinator) { c.newID = f } }

func New(store quiz.AttemptStore, quizzes QuizReader, enforcer *deadline.Enforcer, log logrus.FieldLogger, opts ...Option) *Coordinator {
	if enforcer == nil {
		enforcer = deadline.New(nil)
	}
	c := &Coordinator{
		store:    store,
		quizzes:  quizzes,
		enforcer: enforcer,
		scorer:   grading.NewEngine(),
		log:      log,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session is an attempt with its student view and saved answers.
type Session struct {
	Attempt quiz.Attempt  `json:"attempt"`
	Quiz    quiz.QuizView `json:"quiz"`
	Answers []quiz.Answer `json:"answers"`
	// RemainingSeconds is set for timed attempts still in progress.
	RemainingSeconds *int64 `json:"remaining_seconds,omitempty"`
}

// Outcome is the result of finalize.
type Outcome struct {
	Attempt   quiz.Attempt            `json:"attempt"`
	Breakdown []grading.QuestionResult `json:"breakdown"`
}

// Start opens a new attempt. An open attempt that already ran past its
// deadline is graded first; a live one yields *quiz.AttemptInProgressError.
func (c *Coordinator) Start(ctx context.Context, quizID, enrollmentID string) (Session, error) {
	q, err := c.quizzes.GetQuizForAuthoring(ctx, quizID)
	if err != nil {
		return Session{}, err
	}
	if len(q.Questions) == 0 {
		return Session{}, quiz.ErrEmptyQuiz
	}

	open, err := c.store.FindInProgress(ctx, quizID, enrollmentID)
	switch {
	case err == nil:
		if !c.enforcer.Expired(open.Deadline) {
			return Session{}, &quiz.AttemptInProgressError{AttemptID: open.ID}
		}
		if _, err := c.Finalize(ctx, open.ID); err != nil {
			return Session{}, fmt.Errorf("finalize expired attempt %s: %w", open.ID, err)
		}
	case !errors.Is(err, quiz.ErrAttemptNotFound):
		return Session{}, err
	}

	history, err := c.store.ListAttempts(ctx, quizID, enrollmentID)
	if err != nil {
		return Session{}, err
	}
	if c.policy != nil {
		if err := c.policy.CanStart(ctx, q, history); err != nil {
			return Session{}, err
		}
	}

	now := c.enforcer.Now().UTC()
	id := c.newID()
	a := quiz.Attempt{
		ID:            id,
		QuizID:        quizID,
		EnrollmentID:  enrollmentID,
		Status:        quiz.StatusInProgress,
		AttemptNumber: nextNumber(history),
		StartedAt:     now,
		Deadline:      deadline.ComputeDeadline(now, q.TimeLimitMinutes),
		Snapshot:      quiz.NewSnapshot(q, id),
	}
	if err := c.store.CreateAttempt(ctx, a); err != nil {
		return Session{}, err
	}

	c.record(ctx, "AttemptStarted", a)
	if c.observer != nil {
		c.observer.AttemptStarted(quizID)
	}
	c.entry(a).WithField("attempt_number", a.AttemptNumber).Info("attempt started")
	return c.session(a, q, []quiz.Answer{}), nil
}

func nextNumber(history []quiz.Attempt) int {
	n := 0
	for _, h := range history {
		if h.AttemptNumber > n {
			n = h.AttemptNumber
		}
	}
	return n + 1
}

// SubmitAnswer upserts the selection for one question. Expiry blocks the
// write but does not grade the attempt.
func (c *Coordinator) SubmitAnswer(ctx context.Context, attemptID, questionID string, optionIDs []string) error {
	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := c.writable(a); err != nil {
		c.reject(a, err)
		return err
	}

	qn, ok := a.Snapshot.Question(questionID)
	if !ok {
		return c.rejectf(a, "%w: question %s is not part of this attempt", quiz.ErrInvalidOption, questionID)
	}
	sel := dedupe(optionIDs)
	if len(sel) == 0 {
		return c.rejectf(a, "%w: no option selected", quiz.ErrInvalidOption)
	}
	for _, id := range sel {
		if !qn.HasOption(id) {
			return c.rejectf(a, "%w: option %s", quiz.ErrInvalidOption, id)
		}
	}
	if qn.Kind == quiz.KindSingle && len(sel) > 1 {
		return c.rejectf(a, "%w: single-choice question takes one option", quiz.ErrInvalidOption)
	}

	now := c.enforcer.Now().UTC()
	err = c.store.UpsertAnswer(ctx, quiz.Answer{AttemptID: a.ID, QuestionID: questionID, OptionIDs: sel, UpdatedAt: now}, now)
	if errors.Is(err, quiz.ErrInvalidState) {
		// lost a race with finalize or the deadline; report which
		if cur, gerr := c.store.GetAttempt(ctx, attemptID); gerr == nil {
			if werr := c.writable(cur); werr != nil {
				err = werr
			}
		}
		c.reject(a, err)
	}
	return err
}

func (c *Coordinator) writable(a quiz.Attempt) error {
	if a.Status != quiz.StatusInProgress {
		return quiz.ErrInvalidState
	}
	if c.enforcer.Expired(a.Deadline) {
		return quiz.ErrDeadlineExceeded
	}
	return nil
}

// Finalize grades the attempt. It is safe to call at any time and any number
// of times: a graded attempt is returned unchanged.
func (c *Coordinator) Finalize(ctx context.Context, attemptID string) (Outcome, error) {
	var result grading.Result
	a, won, err := c.store.Finalize(ctx, attemptID, c.enforcer.Now().UTC(), func(a quiz.Attempt, answers []quiz.Answer) (quiz.Grade, error) {
		r, err := c.score(a, answers)
		if err != nil {
			return quiz.Grade{}, err
		}
		result = r
		return r.Grade(), nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if !won {
		answers, err := c.store.ListAnswers(ctx, attemptID)
		if err != nil {
			return Outcome{}, err
		}
		if result, err = c.score(a, answers); err != nil {
			return Outcome{}, err
		}
		return Outcome{Attempt: a, Breakdown: result.Questions}, nil
	}

	c.record(ctx, "AttemptGraded", a)
	if c.observer != nil {
		c.observer.AttemptGraded(a.QuizID, *a.Score, *a.Passed)
	}
	c.entry(a).WithFields(logrus.Fields{"score": *a.Score, "passed": *a.Passed}).Info("attempt graded")
	if c.hook != nil {
		c.notify(ctx, a)
	}
	return Outcome{Attempt: a, Breakdown: result.Questions}, nil
}

func (c *Coordinator) score(a quiz.Attempt, answers []quiz.Answer) (grading.Result, error) {
	return c.scorer.Score(grading.Input{
		QuizID:       a.QuizID,
		PassingScore: a.Snapshot.PassingScore,
		Questions:    a.Snapshot.Questions,
		Answers:      answers,
	})
}

func (c *Coordinator) notify(ctx context.Context, a quiz.Attempt) {
	q, err := c.quizzes.GetQuizForAuthoring(ctx, a.QuizID)
	if err != nil {
		c.entry(a).WithError(err).Error("graded hook: load quiz")
		return
	}
	if err := c.hook.AttemptGraded(ctx, q, a); err != nil {
		c.entry(a).WithError(err).Error("graded hook failed")
	}
}

// Result returns the attempt, grading it first when it is open past its deadline.
func (c *Coordinator) Result(ctx context.Context, attemptID string) (quiz.Attempt, error) {
	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return quiz.Attempt{}, err
	}
	if a.Status == quiz.StatusInProgress && c.enforcer.Expired(a.Deadline) {
		out, err := c.Finalize(ctx, attemptID)
		if err != nil {
			return quiz.Attempt{}, err
		}
		return out.Attempt, nil
	}
	return a, nil
}

// Resume loads an attempt with its view and saved answers, auto-finalizing
// it when the deadline has passed.
func (c *Coordinator) Resume(ctx context.Context, attemptID string) (Session, error) {
	a, err := c.Result(ctx, attemptID)
	if err != nil {
		return Session{}, err
	}
	q, err := c.quizzes.GetQuizForAuthoring(ctx, a.QuizID)
	if err != nil {
		return Session{}, err
	}
	answers, err := c.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return Session{}, err
	}
	return c.session(a, q, answers), nil
}

func (c *Coordinator) session(a quiz.Attempt, q quiz.Quiz, answers []quiz.Answer) Session {
	s := Session{Attempt: a, Quiz: a.View(q.ModuleID, q.Description), Answers: answers}
	if a.Status != quiz.StatusInProgress {
		return s
	}
	if left, ok := c.enforcer.Remaining(a.Deadline); ok {
		secs := int64(left / time.Second)
		s.RemainingSeconds = &secs
	}
	return s
}

// History lists the attempts of one enrollment on one quiz, newest first.
func (c *Coordinator) History(ctx context.Context, quizID, enrollmentID string) ([]quiz.Attempt, error) {
	return c.store.ListAttempts(ctx, quizID, enrollmentID)
}

// Attempt returns the stored attempt without side effects.
func (c *Coordinator) Attempt(ctx context.Context, attemptID string) (quiz.Attempt, error) {
	return c.store.GetAttempt(ctx, attemptID)
}

func (c *Coordinator) record(ctx context.Context, typ string, a quiz.Attempt) {
	if c.journal == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		c.entry(a).WithError(err).Error("encode journal event")
		return
	}
	if err := c.journal.Append(ctx, syncx.Event{Type: typ, Key: a.ID, DataJSON: string(data)}); err != nil {
		c.entry(a).WithError(err).WithField("event", typ).Error("journal append failed")
	}
}

func (c *Coordinator) entry(a quiz.Attempt) *logrus.Entry {
	return c.log.WithFields(logrus.Fields{
		"attempt_id":    a.ID,
		"quiz_id":       a.QuizID,
		"enrollment_id": a.EnrollmentID,
	})
}

func (c *Coordinator) reject(a quiz.Attempt, err error) {
	reason := "invalid_state"
	switch {
	case errors.Is(err, quiz.ErrDeadlineExceeded):
		reason = "deadline_exceeded"
	case errors.Is(err, quiz.ErrInvalidOption):
		reason = "invalid_option"
	}
	if c.observer != nil {
		c.observer.AnswerRejected(reason)
	}
	c.entry(a).WithError(err).Debug("answer rejected")
}

func (c *Coordinator) rejectf(a quiz.Attempt, format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	c.reject(a, err)
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
