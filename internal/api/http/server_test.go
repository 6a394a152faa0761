package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizgate/internal/attempt"
	authmw "github.com/mind-engage/quizgate/internal/auth/middleware"
	"github.com/mind-engage/quizgate/internal/deadline"
	"github.com/mind-engage/quizgate/internal/enrollment"
	"github.com/mind-engage/quizgate/internal/progress"
	"github.com/mind-engage/quizgate/internal/quiz"
	syncx "github.com/mind-engage/quizgate/internal/sync"
)

type harness struct {
	t       *testing.T
	router  chi.Router
	auth    *authmw.AuthService
	unlocks *progress.MemoryUnlocks
}

// memJournal stands in for the event_log table.
type memJournal struct {
	mu     sync.Mutex
	events []syncx.Event
}

func (j *memJournal) Append(_ context.Context, e syncx.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.Offset = int64(len(j.events) + 1)
	e.CreatedAt = time.Now().UnixMilli()
	j.events = append(j.events, e)
	return nil
}

func (j *memJournal) ByKey(_ context.Context, key string) ([]syncx.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []syncx.Event
	for _, e := range j.events {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := quiz.NewInMemoryStore()
	bank := quiz.NewBank(store, log)
	unlocks := progress.NewMemoryUnlocks()
	gate := progress.NewGate(0, unlocks, nil, log)
	journal := &memJournal{}
	coord := attempt.New(store, bank, deadline.New(nil), log,
		attempt.WithPolicy(gate), attempt.WithGradedHook(gate), attempt.WithJournal(journal))

	catalog := enrollment.NewMemoryChecker()
	catalog.AddModule("mod-1", "course-1")
	catalog.Enroll("enr-alice", "course-1", "alice")
	catalog.Enroll("enr-bob", "course-1", "bob")

	a := authmw.NewAuthService("test-secret")
	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(a))
		NewServer(bank, coord, gate, enrollment.NewGuard(catalog), log,
			WithAudit(journal), WithUnlocks(unlocks)).Mount(pr)
	})
	return &harness{t: t, router: r, auth: a, unlocks: unlocks}
}

func (h *harness) do(user, role, method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	tok, err := h.auth.IssueJWT(user, role)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// authorQuiz creates a 3-question quiz and returns it with its answer key.
func (h *harness) authorQuiz(passing int) quiz.Quiz {
	h.t.Helper()
	return h.authorQuizWith(map[string]any{"passing_score": passing}, "one", "two", "three")
}

func (h *harness) authorQuizWith(settings map[string]any, prompts ...string) quiz.Quiz {
	h.t.Helper()
	body := map[string]any{"module_id": "mod-1", "title": "Module 1"}
	for k, v := range settings {
		body[k] = v
	}
	rec := h.do("tina", "teacher", http.MethodPost, "/quizzes", body)
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	q := decode[quiz.Quiz](h.t, rec)

	for _, prompt := range prompts {
		rec = h.do("tina", "teacher", http.MethodPost, "/quizzes/"+q.ID+"/questions", map[string]any{
			"prompt":  prompt,
			"options": []map[string]any{{"text": "right", "is_correct": true}, {"text": "wrong"}},
		})
		require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = h.do("tina", "teacher", http.MethodGet, "/quizzes/"+q.ID+"/authoring", nil)
	require.Equal(h.t, http.StatusOK, rec.Code)
	return decode[quiz.Quiz](h.t, rec)
}

func TestStudentFlowPassUnlocksModule(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(70)

	rec := h.do("alice", "student", http.MethodGet, "/quizzes/"+q.ID+"/view?enrollment_id=enr-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "is_correct")

	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "is_correct")
	started := decode[startResponse](t, rec)
	assert.False(t, started.Resumed)
	id := started.Attempt.ID

	for _, qn := range q.Questions {
		rec = h.do("alice", "student", http.MethodPut, "/attempts/"+id+"/answers/"+qn.ID,
			map[string]any{"option_ids": qn.CorrectIDs()})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}

	rec = h.do("alice", "student", http.MethodPost, "/attempts/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[resultResponse](t, rec)
	assert.Equal(t, 100, *res.Attempt.Score)
	assert.True(t, *res.Attempt.Passed)
	assert.Equal(t, 70, res.PassingScore)
	assert.Len(t, res.Breakdown, 3)
	require.NotNil(t, res.Progress)
	assert.True(t, res.Progress.ModuleUnlocked)
	assert.False(t, res.Progress.RetryAvailable)

	ok, _ := h.unlocks.Unlocked(context.Background(), "enr-alice", "mod-1")
	assert.True(t, ok)

	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "retry_not_allowed", decode[errorBody](t, rec).Error)
}

func TestFailedAttemptOffersRetry(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(70)

	rec := h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[startResponse](t, rec).Attempt.ID
	for _, qn := range q.Questions[:2] {
		rec = h.do("alice", "student", http.MethodPut, "/attempts/"+id+"/answers/"+qn.ID, map[string]any{"option_ids": qn.CorrectIDs()})
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec = h.do("alice", "student", http.MethodPost, "/attempts/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[resultResponse](t, rec)
	assert.Equal(t, 67, *res.Attempt.Score)
	assert.False(t, *res.Attempt.Passed)
	assert.True(t, res.Progress.RetryAvailable)

	// duplicate finalize returns the same grade
	rec = h.do("alice", "student", http.MethodPost, "/attempts/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[resultResponse](t, rec)
	assert.Equal(t, *res.Attempt.SubmittedAt, *again.Attempt.SubmittedAt)

	rec = h.do("alice", "student", http.MethodPut, "/attempts/"+id+"/answers/"+q.Questions[2].ID, map[string]any{"option_ids": q.Questions[2].CorrectIDs()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorBody](t, rec).Error)

	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, decode[startResponse](t, rec).Attempt.AttemptNumber)

	rec = h.do("alice", "student", http.MethodGet, "/quizzes/"+q.ID+"/attempts?enrollment_id=enr-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]quiz.Attempt](t, rec), 2)
}

func TestStartResumesOpenAttempt(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(50)
	body := map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"}

	rec := h.do("alice", "student", http.MethodPost, "/attempts", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[startResponse](t, rec)
	rec = h.do("alice", "student", http.MethodPut, "/attempts/"+first.Attempt.ID+"/answers/"+q.Questions[0].ID,
		map[string]any{"option_ids": q.Questions[0].CorrectIDs()})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do("alice", "student", http.MethodPost, "/attempts", body)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[startResponse](t, rec)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Len(t, second.Answers, 1)
}

func TestEnrollmentIsEnforced(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(50)

	rec := h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_enrolled", decode[errorBody](t, rec).Error)

	rec = h.do("bob", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[startResponse](t, rec).Attempt.ID

	rec = h.do("alice", "student", http.MethodGet, "/attempts/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do("alice", "student", http.MethodPost, "/attempts/"+id+"/finalize", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do("tina", "teacher", http.MethodGet, "/attempts/"+id+"/result", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "staff may read any attempt")
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(50)

	rec := h.do("alice", "student", http.MethodPost, "/quizzes", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "students cannot author")

	rec = h.do("tina", "teacher", http.MethodPost, "/quizzes", map[string]any{"title": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "validation_failed", body.Error)
	assert.Contains(t, body.Fields, "module_id")

	rec = h.do("tina", "teacher", http.MethodGet, "/quizzes/nope/authoring", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do("tina", "teacher", http.MethodPost, "/quizzes", map[string]any{"module_id": "mod-1", "title": "empty", "passing_score": 50})
	require.Equal(t, http.StatusCreated, rec.Code)
	empty := decode[quiz.Quiz](t, rec)
	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": empty.ID, "enrollment_id": "enr-alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[startResponse](t, rec).Attempt.ID

	rec = h.do("alice", "student", http.MethodPut, "/attempts/"+id+"/answers/"+q.Questions[0].ID,
		map[string]any{"option_ids": q.Questions[1].CorrectIDs()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_option", decode[errorBody](t, rec).Error)

	rec = h.do("tina", "teacher", http.MethodPut, "/quizzes/"+q.ID+"/settings", map[string]any{"passing_score": 90})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "quiz_has_open_attempts", decode[errorBody](t, rec).Error)

	rec = h.do("tina", "teacher", http.MethodDelete, "/quizzes/"+q.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do("tina", "teacher", http.MethodDelete, "/quizzes/"+q.ID+"?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do("alice", "student", http.MethodGet, "/attempts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// takeAttempt starts an attempt for alice, answers the first n questions
// correctly and finalizes it.
func (h *harness) takeAttempt(q quiz.Quiz, n int) resultResponse {
	h.t.Helper()
	rec := h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[startResponse](h.t, rec).Attempt.ID
	for _, qn := range q.Questions[:n] {
		rec = h.do("alice", "student", http.MethodPut, "/attempts/"+id+"/answers/"+qn.ID, map[string]any{"option_ids": qn.CorrectIDs()})
		require.Equal(h.t, http.StatusNoContent, rec.Code, rec.Body.String())
	}
	rec = h.do("alice", "student", http.MethodPost, "/attempts/"+id+"/finalize", nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[resultResponse](h.t, rec)
}

func TestEarlierFailedResultAfterLaterPass(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(70)

	first := h.takeAttempt(q, 2)
	require.True(t, first.Progress.RetryAvailable)
	second := h.takeAttempt(q, 3)
	require.True(t, *second.Attempt.Passed)

	rec := h.do("alice", "student", http.MethodGet, "/attempts/"+first.Attempt.ID+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[resultResponse](t, rec)
	assert.False(t, *res.Attempt.Passed)
	require.NotNil(t, res.Progress)
	assert.False(t, res.Progress.RetryAvailable, "the later pass closes the quiz")
	assert.Equal(t, 2, res.Progress.AttemptsUsed)

	rec = h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQuizViewMatchesOpenAttempt(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuizWith(map[string]any{"passing_score": 50, "shuffle_questions": true, "time_limit_minutes": 20},
		"a", "b", "c", "d", "e", "f")

	rec := h.do("alice", "student", http.MethodPost, "/attempts", map[string]string{"quiz_id": q.ID, "enrollment_id": "enr-alice"})
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[startResponse](t, rec)
	require.NotNil(t, started.RemainingSeconds)

	rec = h.do("alice", "student", http.MethodGet, "/quizzes/"+q.ID+"/view?enrollment_id=enr-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[quiz.QuizView](t, rec)

	rec = h.do("alice", "student", http.MethodGet, "/attempts/"+started.Attempt.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decode[startResponse](t, rec)

	ids := func(qs []quiz.QuestionView) []string {
		out := make([]string, 0, len(qs))
		for _, qv := range qs {
			out = append(out, qv.ID)
		}
		return out
	}
	assert.Equal(t, ids(sess.Quiz.Questions), ids(view.Questions))
	require.NotNil(t, view.Deadline)
	assert.True(t, started.Attempt.Deadline.Equal(*view.Deadline))
}

func TestModuleUnlockAndAuditRoutes(t *testing.T) {
	h := newHarness(t)
	q := h.authorQuiz(70)

	rec := h.do("alice", "student", http.MethodGet, "/modules/mod-1/unlock?enrollment_id=enr-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[unlockResponse](t, rec).Unlocked)

	res := h.takeAttempt(q, 3)

	rec = h.do("alice", "student", http.MethodGet, "/modules/mod-1/unlock?enrollment_id=enr-alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[unlockResponse](t, rec).Unlocked)
	rec = h.do("bob", "student", http.MethodGet, "/modules/mod-1/unlock?enrollment_id=enr-alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do("alice", "student", http.MethodGet, "/attempts/"+res.Attempt.ID+"/events", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do("tina", "teacher", http.MethodGet, "/attempts/"+res.Attempt.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]auditEntry](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, "AttemptStarted", events[0].Type)
	assert.Equal(t, "AttemptGraded", events[1].Type)
	assert.Contains(t, string(events[1].Data), res.Attempt.ID)
}
