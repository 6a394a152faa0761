// Package grading scores a set of answers against a frozen question set.
// It performs no I/O.
package grading

import (
	"github.com/shopspring/decimal"

	"github.com/mind-engage/quizgate/internal/quiz"
)

// Strategy decides whether a selection answers a question correctly.
type Strategy interface {
	Correct(q quiz.Question, selected []string) bool
}

type Input struct {
	QuizID       string
	PassingScore int
	Questions    []quiz.Question
	Answers      []quiz.Answer
}

type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
	Earned     int    `json:"earned"`
}

type Result struct {
	ScorePercent int              `json:"score"`
	Passed       bool             `json:"passed"`
	EarnedPoints int              `json:"earned_points"`
	TotalPoints  int              `json:"total_points"`
	Correct      int              `json:"correct"`
	Total        int              `json:"total"`
	Questions    []QuestionResult `json:"questions"`
}

// Grade converts the result into the fields finalize persists.
func (r Result) Grade() quiz.Grade {
	return quiz.Grade{
		Score:        r.ScorePercent,
		Passed:       r.Passed,
		Correct:      r.Correct,
		Total:        r.Total,
		EarnedPoints: r.EarnedPoints,
		TotalPoints:  r.TotalPoints,
	}
}

type Engine struct {
	strategies map[quiz.Kind]Strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[quiz.Kind]Strategy{
			quiz.KindSingle:   singleChoice{},
			quiz.KindMultiple: exactSet{},
		},
	}
}

var defaultEngine = NewEngine()

// Score grades in with the built-in strategies.
func Score(in Input) (Result, error) { return defaultEngine.Score(in) }

// Score sums points of correctly answered questions. Unanswered questions earn
// nothing. A question set worth zero points is a ConfigurationError.
func (e *Engine) Score(in Input) (Result, error) {
	selected := make(map[string][]string, len(in.Answers))
	for _, a := range in.Answers {
		selected[a.QuestionID] = a.OptionIDs
	}

	res := Result{Total: len(in.Questions), Questions: make([]QuestionResult, 0, len(in.Questions))}
	for _, q := range in.Questions {
		qr := QuestionResult{QuestionID: q.ID, Points: q.Points}
		sel, answered := selected[q.ID]
		qr.Answered = answered && len(sel) > 0
		if qr.Answered {
			s, ok := e.strategies[q.Kind]
			if !ok {
				s = singleChoice{}
			}
			qr.Correct = s.Correct(q, sel)
		}
		if qr.Correct {
			qr.Earned = q.Points
			res.EarnedPoints += q.Points
			res.Correct++
		}
		res.TotalPoints += q.Points
		res.Questions = append(res.Questions, qr)
	}
	if res.TotalPoints <= 0 {
		return Result{}, &quiz.ConfigurationError{QuizID: in.QuizID, Reason: "total points is zero"}
	}

	res.ScorePercent = Percent(res.EarnedPoints, res.TotalPoints)
	res.Passed = res.ScorePercent >= in.PassingScore
	return res, nil
}

// Percent is round-half-up(earned / total * 100). total must be positive.
func Percent(earned, total int) int {
	p := decimal.NewFromInt(int64(earned)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(p.IntPart())
}

// --- Strategies ---

type singleChoice struct{}

func (singleChoice) Correct(q quiz.Question, selected []string) bool {
	key := q.CorrectIDs()
	return len(selected) == 1 && len(key) == 1 && selected[0] == key[0]
}

// exactSet gives credit only when the selection equals the key; no partial credit.
type exactSet struct{}

func (exactSet) Correct(q quiz.Question, selected []string) bool {
	return setEqual(toSet(q.CorrectIDs()), toSet(selected))
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
