package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/quizgate/internal/attempt"
	"github.com/mind-engage/quizgate/internal/grading"
	"github.com/mind-engage/quizgate/internal/progress"
	"github.com/mind-engage/quizgate/internal/quiz"
)

type startRequest struct {
	QuizID       string `json:"quiz_id"`
	EnrollmentID string `json:"enrollment_id"`
}

type startResponse struct {
	attempt.Session
	Resumed bool `json:"resumed"`
}

type answerRequest struct {
	OptionIDs []string `json:"option_ids"`
}

type resultResponse struct {
	Attempt      quiz.Attempt             `json:"attempt"`
	PassingScore int                      `json:"passing_score"`
	Breakdown    []grading.QuestionResult `json:"breakdown,omitempty"`
	Progress     *progress.Decision       `json:"progress,omitempty"`
}

func enrollmentParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("enrollment_id"))
	if id == "" {
		return "", &quiz.ValidationError{Fields: map[string]string{"enrollment_id": "is required"}}
	}
	return id, nil
}

// GET /quizzes/{quizID}/view?enrollment_id=
// With an attempt in progress the attempt's frozen view is returned, deadline
// and question order included.
func (s *Server) GetQuizForAttempt(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	enr, err := enrollmentParam(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.authorize(r, quizID, enr); err != nil {
		writeError(w, s.log, err)
		return
	}
	view, err := s.bank.GetQuizForAttempt(r.Context(), quizID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	history, err := s.coord.History(r.Context(), quizID, enr)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	for _, a := range history {
		if a.Status == quiz.StatusInProgress {
			view = a.View(view.ModuleID, view.Description)
			break
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /quizzes/{quizID}/attempts?enrollment_id=
func (s *Server) ListAttempts(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	enr, err := enrollmentParam(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.authorize(r, quizID, enr); err != nil {
		writeError(w, s.log, err)
		return
	}
	list, err := s.coord.History(r.Context(), quizID, enr)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /attempts
// An attempt already in progress is resumed instead of failing.
func (s *Server) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if req.QuizID == "" || req.EnrollmentID == "" {
		writeError(w, s.log, &quiz.ValidationError{Fields: map[string]string{"quiz_id": "is required", "enrollment_id": "is required"}})
		return
	}
	if err := s.authorize(r, req.QuizID, req.EnrollmentID); err != nil {
		writeError(w, s.log, err)
		return
	}

	sess, err := s.coord.Start(r.Context(), req.QuizID, req.EnrollmentID)
	var open *quiz.AttemptInProgressError
	if errors.As(err, &open) && open.AttemptID != "" {
		resumed, rerr := s.coord.Resume(r.Context(), open.AttemptID)
		if rerr != nil {
			writeError(w, s.log, rerr)
			return
		}
		writeJSON(w, http.StatusOK, startResponse{Session: resumed, Resumed: true})
		return
	}
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{Session: sess})
}

// GET /attempts/{attemptID}
func (s *Server) GetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAttempt(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	sess, err := s.coord.Resume(r.Context(), a.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// PUT /attempts/{attemptID}/answers/{questionID}
func (s *Server) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAttempt(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.coord.SubmitAnswer(r.Context(), a.ID, chi.URLParam(r, "questionID"), req.OptionIDs); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /attempts/{attemptID}/finalize
// Safe to repeat; a graded attempt returns its stored result.
func (s *Server) FinalizeAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAttempt(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out, err := s.coord.Finalize(r.Context(), a.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		Attempt:      out.Attempt,
		PassingScore: out.Attempt.Snapshot.PassingScore,
		Breakdown:    out.Breakdown,
		Progress:     s.decision(r.Context(), out.Attempt),
	})
}

// GET /attempts/{attemptID}/result
func (s *Server) GetAttemptResult(w http.ResponseWriter, r *http.Request) {
	a, err := s.ownedAttempt(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	res, err := s.coord.Result(r.Context(), a.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		Attempt:      res,
		PassingScore: res.Snapshot.PassingScore,
		Progress:     s.decision(r.Context(), res),
	})
}
