package quiz

import (
	"hash/fnv"
	"math/rand"
)

// NewSnapshot freezes q for one attempt. When the quiz shuffles, the order is
// derived from seed (the attempt id) so repeated reads agree.
func NewSnapshot(q Quiz, seed string) Snapshot {
	qs := cloneQuestions(q.Questions)
	if q.ShuffleQuestions && len(qs) > 1 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(seed))
		r := rand.New(rand.NewSource(int64(h.Sum64())))
		r.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}
	return Snapshot{
		Title:            q.Title,
		PassingScore:     q.PassingScore,
		TimeLimitMinutes: copyInt(q.TimeLimitMinutes),
		Questions:        qs,
	}
}

func questionViews(qs []Question) []QuestionView {
	out := make([]QuestionView, 0, len(qs))
	for _, q := range qs {
		qv := QuestionView{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Kind:     q.Kind,
			Points:   q.Points,
			Position: q.Position,
			Options:  make([]OptionView, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, OptionView{ID: o.ID, Text: o.Text})
		}
		out = append(out, qv)
	}
	return out
}

// StudentView strips the answer key from the live quiz.
func (q Quiz) StudentView() QuizView {
	return QuizView{
		ID:               q.ID,
		ModuleID:         q.ModuleID,
		Title:            q.Title,
		Description:      q.Description,
		PassingScore:     q.PassingScore,
		TimeLimitMinutes: copyInt(q.TimeLimitMinutes),
		Questions:        questionViews(q.Questions),
	}
}

// View renders the attempt's frozen question set without the answer key.
func (a Attempt) View(moduleID, description string) QuizView {
	return QuizView{
		ID:               a.QuizID,
		ModuleID:         moduleID,
		Title:            a.Snapshot.Title,
		Description:      description,
		PassingScore:     a.Snapshot.PassingScore,
		TimeLimitMinutes: copyInt(a.Snapshot.TimeLimitMinutes),
		Questions:        questionViews(a.Snapshot.Questions),
		Deadline:         copyTime(a.Deadline),
	}
}
