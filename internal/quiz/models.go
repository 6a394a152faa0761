package quiz

import "time"

type Kind string

const (
	KindSingle   Kind = "single"   // exactly one correct option
	KindMultiple Kind = "multiple" // one or more correct options, graded as an exact set
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

type Quiz struct {
	ID               string     `json:"id"`
	ModuleID         string     `json:"module_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	PassingScore     int        `json:"passing_score"`                // percentage 0..100
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"` // nil = untimed
	ShuffleQuestions bool       `json:"shuffle_questions,omitempty"`
	Questions        []Question `json:"questions,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type Question struct {
	ID       string   `json:"id"`
	QuizID   string   `json:"quiz_id"`
	Prompt   string   `json:"prompt"`
	Kind     Kind     `json:"kind"`
	Points   int      `json:"points"`
	Position int      `json:"position"`
	Options  []Option `json:"options,omitempty"`
}

type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Position   int    `json:"position"`
}

// CorrectIDs returns the ids of the options marked correct.
func (q Question) CorrectIDs() []string {
	out := make([]string, 0, 1)
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.ID)
		}
	}
	return out
}

// HasOption reports whether id is one of q's options.
func (q Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Snapshot is the frozen copy of a quiz taken when an attempt starts.
// Grading and answer validation read the snapshot, never the live quiz.
type Snapshot struct {
	Title            string     `json:"title"`
	PassingScore     int        `json:"passing_score"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	Questions        []Question `json:"questions"`
}

// Question looks up a question in the snapshot by id.
func (s Snapshot) Question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Attempt struct {
	ID            string     `json:"id"`
	QuizID        string     `json:"quiz_id"`
	EnrollmentID  string     `json:"enrollment_id"`
	Status        Status     `json:"status"`
	AttemptNumber int        `json:"attempt_number"`
	StartedAt     time.Time  `json:"started_at"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	Score         *int       `json:"score,omitempty"`
	Passed        *bool      `json:"passed,omitempty"`
	Correct       int        `json:"correct"`
	Total         int        `json:"total"`
	EarnedPoints  int        `json:"earned_points"`
	TotalPoints   int        `json:"total_points"`
	Snapshot      Snapshot   `json:"-"`
}

type Answer struct {
	AttemptID  string    `json:"attempt_id"`
	QuestionID string    `json:"question_id"`
	OptionIDs  []string  `json:"option_ids"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Grade is what finalize writes onto an attempt.
type Grade struct {
	Score        int
	Passed       bool
	Correct      int
	Total        int
	EarnedPoints int
	TotalPoints  int
}

// ---- student-facing views (no answer key) ----

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID       string       `json:"id"`
	Prompt   string       `json:"prompt"`
	Kind     Kind         `json:"kind"`
	Points   int          `json:"points"`
	Position int          `json:"position"`
	Options  []OptionView `json:"options"`
}

type QuizView struct {
	ID               string         `json:"id"`
	ModuleID         string         `json:"module_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	PassingScore     int            `json:"passing_score"`
	TimeLimitMinutes *int           `json:"time_limit_minutes,omitempty"`
	Questions        []QuestionView `json:"questions"`
	Deadline         *time.Time     `json:"deadline,omitempty"` // display only
}
