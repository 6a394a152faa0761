// Package http binds the assessment engine to chi routes.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mind-engage/quizgate/internal/attempt"
	authmw "github.com/mind-engage/quizgate/internal/auth/middleware"
	"github.com/mind-engage/quizgate/internal/enrollment"
	"github.com/mind-engage/quizgate/internal/progress"
	"github.com/mind-engage/quizgate/internal/quiz"
	"github.com/mind-engage/quizgate/internal/rbac"
	syncx "github.com/mind-engage/quizgate/internal/sync"
)

type Server struct {
	bank    *quiz.Bank
	coord   *attempt.Coordinator
	gate    *progress.Gate
	guard   *enrollment.Guard
	audit   AuditReader
	unlocks UnlockReader
	log     logrus.FieldLogger
}

// AuditReader reads the attempt journal.
type AuditReader interface {
	ByKey(ctx context.Context, key string) ([]syncx.Event, error)
}

// UnlockReader reports recorded module unlocks.
type UnlockReader interface {
	Unlocked(ctx context.Context, enrollmentID, moduleID string) (bool, error)
}

type ServerOption func(*Server)

// WithAudit mounts GET /attempts/{attemptID}/events.
func WithAudit(a AuditReader) ServerOption { return func(s *Server) { s.audit = a } }

// WithUnlocks mounts GET /modules/{moduleID}/unlock.
func WithUnlocks(u UnlockReader) ServerOption { return func(s *Server) { s.unlocks = u } }

func NewServer(bank *quiz.Bank, coord *attempt.Coordinator, gate *progress.Gate, guard *enrollment.Guard, log logrus.FieldLogger, opts ...ServerOption) *Server {
	s := &Server{bank: bank, coord: coord, gate: gate, guard: guard, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Mount registers the protected API. The caller installs JWTMiddleware first.
func (s *Server) Mount(pr chi.Router) {
	// Authoring
	pr.With(rbac.Require("quiz:author")).Post("/quizzes", s.CreateQuiz)
	pr.With(rbac.Require("quiz:author")).Get("/quizzes/{quizID}/authoring", s.GetQuizForAuthoring)
	pr.With(rbac.Require("quiz:author")).Patch("/quizzes/{quizID}", s.UpdateMetadata)
	pr.With(rbac.Require("quiz:author")).Put("/quizzes/{quizID}/settings", s.UpdateSettings)
	pr.With(rbac.Require("quiz:delete")).Delete("/quizzes/{quizID}", s.DeleteQuiz)
	pr.With(rbac.Require("quiz:author")).Post("/quizzes/{quizID}/questions", s.AddQuestion)
	pr.With(rbac.Require("quiz:author")).Post("/questions/{questionID}/options", s.AddOption)

	// Student flow
	pr.With(rbac.Require("quiz:take")).Get("/quizzes/{quizID}/view", s.GetQuizForAttempt)
	pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/quizzes/{quizID}/attempts", s.ListAttempts)
	pr.With(rbac.Require("attempt:create")).Post("/attempts", s.StartAttempt)
	pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}", s.GetAttempt)
	pr.With(rbac.Require("attempt:save")).Put("/attempts/{attemptID}/answers/{questionID}", s.SubmitAnswer)
	pr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/finalize", s.FinalizeAttempt)
	pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
		Get("/attempts/{attemptID}/result", s.GetAttemptResult)

	// Progress and audit
	if s.unlocks != nil {
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/modules/{moduleID}/unlock", s.GetModuleUnlock)
	}
	if s.audit != nil {
		pr.With(rbac.Require("attempt:view-all")).Get("/attempts/{attemptID}/events", s.ListAttemptEvents)
	}
}

// authorize checks that the caller owns enrollmentID in the course holding
// the quiz's module. Staff with attempt:view-all skip the check.
func (s *Server) authorize(r *http.Request, quizID, enrollmentID string) error {
	q, err := s.bank.GetQuizForAuthoring(r.Context(), quizID)
	if err != nil {
		return err
	}
	return s.authorizeModule(r, q.ModuleID, enrollmentID)
}

func (s *Server) authorizeModule(r *http.Request, moduleID, enrollmentID string) error {
	if rbac.Can(r, "attempt:view-all") {
		return nil
	}
	return s.guard.Authorize(r.Context(), enrollment.Ref{
		EnrollmentID: enrollmentID,
		StudentID:    authmw.SubjectFromContext(r.Context()),
		ModuleID:     moduleID,
	})
}

// ownedAttempt loads the attempt and authorizes the caller against it.
func (s *Server) ownedAttempt(r *http.Request) (quiz.Attempt, error) {
	a, err := s.coord.Attempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		return quiz.Attempt{}, err
	}
	if err := s.authorize(r, a.QuizID, a.EnrollmentID); err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

// decision judges a graded attempt against the enrollment's whole history so
// it agrees with what a new start would be allowed to do.
func (s *Server) decision(ctx context.Context, a quiz.Attempt) *progress.Decision {
	if a.Status != quiz.StatusGraded {
		return nil
	}
	entry := s.log.WithField("attempt_id", a.ID)
	history, err := s.coord.History(ctx, a.QuizID, a.EnrollmentID)
	if err != nil {
		entry.WithError(err).Warn("attempt history unavailable")
		return nil
	}
	d, err := s.gate.Decide(a, history)
	if err != nil {
		entry.WithError(err).Warn("progress decision unavailable")
		return nil
	}
	return &d
}
