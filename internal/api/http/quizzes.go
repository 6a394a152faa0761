package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/quizgate/internal/quiz"
)

// POST /quizzes
func (s *Server) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	var in quiz.CreateQuizInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, s.log, err)
		return
	}
	q, err := s.bank.CreateQuiz(r.Context(), in)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// GET /quizzes/{quizID}/authoring
func (s *Server) GetQuizForAuthoring(w http.ResponseWriter, r *http.Request) {
	q, err := s.bank.GetQuizForAuthoring(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// PATCH /quizzes/{quizID}
func (s *Server) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var in quiz.UpdateMetadataInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.bank.UpdateMetadata(r.Context(), chi.URLParam(r, "quizID"), in); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /quizzes/{quizID}/settings
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in quiz.UpdateSettingsInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.bank.UpdateSettings(r.Context(), chi.URLParam(r, "quizID"), in); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /quizzes/{quizID}?confirm=true
// Deleting removes every attempt on the quiz, so the caller must confirm.
func (s *Server) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, s.log, &quiz.ValidationError{Fields: map[string]string{
			"confirm": "must be true; deleting a quiz also deletes its attempts",
		}})
		return
	}
	if err := s.bank.DeleteQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /quizzes/{quizID}/questions
func (s *Server) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var in quiz.AddQuestionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, s.log, err)
		return
	}
	qn, err := s.bank.AddQuestion(r.Context(), chi.URLParam(r, "quizID"), in)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, qn)
}

// POST /questions/{questionID}/options
func (s *Server) AddOption(w http.ResponseWriter, r *http.Request) {
	var in quiz.OptionInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, s.log, err)
		return
	}
	o, err := s.bank.AddOption(r.Context(), chi.URLParam(r, "questionID"), in)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}
