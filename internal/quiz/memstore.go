package quiz

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz
	questions map[string]string // questionID -> quizID
	attempts  map[string]Attempt
	answers   map[string]map[string]Answer // attemptID -> questionID -> answer
}

func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:   map[string]Quiz{},
		questions: map[string]string{},
		attempts:  map[string]Attempt{},
		answers:   map[string]map[string]Answer{},
	}
}

func (m *memoryStore) CreateQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.Questions = nil
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return cloneQuiz(q), nil
}

func (m *memoryStore) UpdateQuizMetadata(_ context.Context, id, title, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return ErrQuizNotFound
	}
	q.Title, q.Description = title, description
	m.quizzes[id] = q
	return nil
}

func (m *memoryStore) UpdateQuizSettings(_ context.Context, id string, passingScore int, timeLimitMinutes *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return ErrQuizNotFound
	}
	q.PassingScore = passingScore
	q.TimeLimitMinutes = copyInt(timeLimitMinutes)
	m.quizzes[id] = q
	return nil
}

func (m *memoryStore) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return ErrQuizNotFound
	}
	for _, qq := range q.Questions {
		delete(m.questions, qq.ID)
	}
	for aid, a := range m.attempts {
		if a.QuizID == id {
			delete(m.attempts, aid)
			delete(m.answers, aid)
		}
	}
	delete(m.quizzes, id)
	return nil
}

func (m *memoryStore) AddQuestion(_ context.Context, qn Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[qn.QuizID]
	if !ok {
		return ErrQuizNotFound
	}
	q.Questions = append(cloneQuestions(q.Questions), cloneQuestion(qn))
	sortQuestions(q.Questions)
	m.quizzes[q.ID] = q
	m.questions[qn.ID] = q.ID
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	quizID, ok := m.questions[id]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	for _, qn := range m.quizzes[quizID].Questions {
		if qn.ID == id {
			return cloneQuestion(qn), nil
		}
	}
	return Question{}, ErrQuestionNotFound
}

func (m *memoryStore) AddOption(_ context.Context, o Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quizID, ok := m.questions[o.QuestionID]
	if !ok {
		return ErrQuestionNotFound
	}
	q := m.quizzes[quizID]
	q.Questions = cloneQuestions(q.Questions)
	for i := range q.Questions {
		if q.Questions[i].ID == o.QuestionID {
			q.Questions[i].Options = append(q.Questions[i].Options, o)
			sortOptions(q.Questions[i].Options)
		}
	}
	m.quizzes[quizID] = q
	return nil
}

// ---- attempts ----

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.attempts {
		if x.QuizID != a.QuizID || x.EnrollmentID != a.EnrollmentID {
			continue
		}
		if x.Status == StatusInProgress || x.AttemptNumber == a.AttemptNumber {
			id := x.ID
			if x.Status != StatusInProgress {
				id = ""
			}
			return &AttemptInProgressError{AttemptID: id}
		}
	}
	m.attempts[a.ID] = cloneAttempt(a)
	m.answers[a.ID] = map[string]Answer{}
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) FindInProgress(_ context.Context, quizID, enrollmentID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.EnrollmentID == enrollmentID && a.Status == StatusInProgress {
			return cloneAttempt(a), nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (m *memoryStore) ListAttempts(_ context.Context, quizID, enrollmentID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0, 4)
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.EnrollmentID == enrollmentID {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber > out[j].AttemptNumber })
	return out, nil
}

func (m *memoryStore) CountOpenAttempts(_ context.Context, quizID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.Status == StatusInProgress {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) UpsertAnswer(_ context.Context, ans Answer, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[ans.AttemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Status != StatusInProgress || (a.Deadline != nil && !now.Before(*a.Deadline)) {
		return ErrInvalidState
	}
	ans.OptionIDs = append([]string(nil), ans.OptionIDs...)
	m.answers[ans.AttemptID][ans.QuestionID] = ans
	return nil
}

func (m *memoryStore) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAnswersLocked(attemptID), nil
}

func (m *memoryStore) listAnswersLocked(attemptID string) []Answer {
	out := make([]Answer, 0, len(m.answers[attemptID]))
	for _, ans := range m.answers[attemptID] {
		ans.OptionIDs = append([]string(nil), ans.OptionIDs...)
		out = append(out, ans)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

func (m *memoryStore) Finalize(_ context.Context, attemptID string, now time.Time, grade GradeFunc) (Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, false, ErrAttemptNotFound
	}
	if a.Status == StatusGraded {
		return cloneAttempt(a), false, nil
	}
	g, err := grade(cloneAttempt(a), m.listAnswersLocked(attemptID))
	if err != nil {
		return Attempt{}, false, err
	}
	applyGrade(&a, g, now)
	m.attempts[attemptID] = a
	return cloneAttempt(a), true, nil
}

func (m *memoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attempt, 0)
	for _, a := range m.attempts {
		if a.Status == StatusInProgress && a.Deadline != nil && !now.Before(*a.Deadline) {
			out = append(out, cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- helpers shared with the SQL store ----

func applyGrade(a *Attempt, g Grade, now time.Time) {
	t := now
	score, passed := g.Score, g.Passed
	a.Status = StatusGraded
	a.SubmittedAt = &t
	a.Score = &score
	a.Passed = &passed
	a.Correct, a.Total = g.Correct, g.Total
	a.EarnedPoints, a.TotalPoints = g.EarnedPoints, g.TotalPoints
}

func sortQuestions(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
}

func sortOptions(os []Option) {
	sort.SliceStable(os, func(i, j int) bool { return os[i].Position < os[j].Position })
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneQuestion(q Question) Question {
	q.Options = append([]Option(nil), q.Options...)
	return q
}

func cloneQuestions(qs []Question) []Question {
	if qs == nil {
		return nil
	}
	out := make([]Question, len(qs))
	for i, q := range qs {
		out[i] = cloneQuestion(q)
	}
	return out
}

func cloneQuiz(q Quiz) Quiz {
	q.TimeLimitMinutes = copyInt(q.TimeLimitMinutes)
	q.Questions = cloneQuestions(q.Questions)
	return q
}

func cloneAttempt(a Attempt) Attempt {
	a.Deadline = copyTime(a.Deadline)
	a.SubmittedAt = copyTime(a.SubmittedAt)
	a.Score = copyInt(a.Score)
	if a.Passed != nil {
		v := *a.Passed
		a.Passed = &v
	}
	a.Snapshot.TimeLimitMinutes = copyInt(a.Snapshot.TimeLimitMinutes)
	a.Snapshot.Questions = cloneQuestions(a.Snapshot.Questions)
	return a
}
