package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)

	assert.True(t, c.Has("student", "attempt:submit"))
	assert.False(t, c.Has("student", "quiz:author"))
	assert.False(t, c.Has("student", "attempt:view-all"))
	assert.True(t, c.Has("teacher", "attempt:view-all"), "wildcard suffix")
	assert.True(t, c.Has("teacher", "attempt:view-own"))
	assert.False(t, c.Has("teacher", "attempt:submit"))
	assert.True(t, c.Has("admin", "quiz:delete"))
	assert.False(t, c.Has("ghost", "quiz:take"))
	assert.True(t, c.Any("student", "quiz:author", "quiz:take"))
	assert.False(t, c.Any("student", "quiz:author", "quiz:delete"))
}

func TestCustomPolicy(t *testing.T) {
	c := NewChecker(Policy{"grader": {"attempt:*"}})
	assert.True(t, c.Has("grader", "attempt:view-all"))
	assert.False(t, c.Has("grader", "quiz:take"))
	assert.False(t, c.Has("student", "quiz:take"), "custom policy replaces the default")
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		role string
		want int
	}{
		{"teacher", http.StatusNoContent},
		{"student", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/quizzes", nil)
		req = req.WithContext(WithRole(req.Context(), tt.role))
		rec := httptest.NewRecorder()
		Require("quiz:author")(ok).ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.role)
	}
}
