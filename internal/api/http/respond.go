package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mind-engage/quizgate/internal/quiz"
)

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	AttemptID string            `json:"attempt_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &quiz.ValidationError{Fields: map[string]string{"body": "malformed JSON: " + err.Error()}}
	}
	return nil
}

// classify maps engine errors onto a status and a stable code.
func classify(err error) (int, string) {
	var (
		ve  *quiz.ValidationError
		ce  *quiz.ConfigurationError
		aip *quiz.AttemptInProgressError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, quiz.ErrQuizNotFound):
		return http.StatusNotFound, "quiz_not_found"
	case errors.Is(err, quiz.ErrQuestionNotFound):
		return http.StatusNotFound, "question_not_found"
	case errors.Is(err, quiz.ErrAttemptNotFound):
		return http.StatusNotFound, "attempt_not_found"
	case errors.Is(err, quiz.ErrNotEnrolled):
		return http.StatusForbidden, "not_enrolled"
	case errors.As(err, &aip), errors.Is(err, quiz.ErrAttemptAlreadyInProgress):
		return http.StatusConflict, "attempt_in_progress"
	case errors.Is(err, quiz.ErrEmptyQuiz):
		return http.StatusUnprocessableEntity, "empty_quiz"
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity, "quiz_misconfigured"
	case errors.Is(err, quiz.ErrDeadlineExceeded):
		return http.StatusGone, "deadline_exceeded"
	case errors.Is(err, quiz.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, quiz.ErrInvalidOption):
		return http.StatusBadRequest, "invalid_option"
	case errors.Is(err, quiz.ErrQuizHasOpenAttempts):
		return http.StatusConflict, "quiz_has_open_attempts"
	case errors.Is(err, quiz.ErrRetryNotAllowed):
		return http.StatusForbidden, "retry_not_allowed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status, code := classify(err)
	body := errorBody{Error: code, Message: err.Error()}
	var ve *quiz.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	var aip *quiz.AttemptInProgressError
	if errors.As(err, &aip) {
		body.AttemptID = aip.AttemptID
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}
