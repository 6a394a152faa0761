package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/quizgate/internal/rbac"
)

func seededUsers(t *testing.T) *MemoryUsers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	u := NewMemoryUsers()
	require.NoError(t, u.Upsert(context.Background(), User{Username: "alice", PasswordHash: string(hash), Role: "student"}))
	return u
}

func TestLoginIssuesTokenForValidPassword(t *testing.T) {
	a := NewAuthService("test-secret")
	log, _ := test.NewNullLogger()
	h := LoginHandler(a, seededUsers(t), log)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"s3cret"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	c, err := a.Parse(body["access_token"])
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Sub)
	assert.Equal(t, "student", c.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := NewAuthService("test-secret")
	log, _ := test.NewNullLogger()
	h := LoginHandler(a, seededUsers(t), log)

	for _, body := range []string{
		`{"username":"alice","password":"nope"}`,
		`{"username":"mallory","password":"s3cret"}`,
	} {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
	}

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJWTMiddlewareSetsSubjectAndRole(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("bob", "teacher")
	require.NoError(t, err)

	var sub, role string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, role = SubjectFromContext(r.Context()), rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", sub)
	assert.Equal(t, "teacher", role)
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("test-secret")
	other, err := NewAuthService("other-secret").IssueJWT("bob", "admin")
	require.NoError(t, err)
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer garbage", "Bearer " + other} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
