package quiz

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateQuizInput struct {
	ModuleID         string `json:"module_id" validate:"required"`
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=4000"`
	PassingScore     *int   `json:"passing_score" validate:"required,min=0,max=100"`
	TimeLimitMinutes *int   `json:"time_limit_minutes" validate:"omitempty,min=1"`
	ShuffleQuestions bool   `json:"shuffle_questions"`
}

type UpdateMetadataInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
}

type UpdateSettingsInput struct {
	PassingScore     *int `json:"passing_score" validate:"required,min=0,max=100"`
	TimeLimitMinutes *int `json:"time_limit_minutes" validate:"omitempty,min=1"`
}

type OptionInput struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
	Position  *int   `json:"position" validate:"omitempty,min=0"`
}

type AddQuestionInput struct {
	Prompt   string        `json:"prompt" validate:"required"`
	Kind     Kind          `json:"kind" validate:"omitempty,oneof=single multiple"`
	Points   *int          `json:"points" validate:"omitempty,min=1"` // default 1
	Position *int          `json:"position" validate:"omitempty,min=0"`
	Options  []OptionInput `json:"options" validate:"required,min=1,dive"`
}

// Bank authors quizzes and is the source of truth for answer keys.
type Bank struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
	valid *validator.Validate
}

func NewBank(store Store, log logrus.FieldLogger) *Bank {
	return &Bank{
		store: store,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
		valid: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (b *Bank) check(in any) error {
	err := b.valid.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{Fields: map[string]string{}}
	for _, fe := range verrs {
		field := strings.SplitN(fe.Namespace(), ".", 2)
		key := fe.Field()
		if len(field) == 2 {
			key = field[1]
		}
		ve.Fields[key] = fieldMessage(fe)
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func (b *Bank) CreateQuiz(ctx context.Context, in CreateQuizInput) (Quiz, error) {
	if err := b.check(in); err != nil {
		return Quiz{}, err
	}
	q := Quiz{
		ID:               b.newID(),
		ModuleID:         in.ModuleID,
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		PassingScore:     *in.PassingScore,
		TimeLimitMinutes: copyInt(in.TimeLimitMinutes),
		ShuffleQuestions: in.ShuffleQuestions,
		CreatedAt:        b.now().UTC(),
	}
	if err := b.store.CreateQuiz(ctx, q); err != nil {
		return Quiz{}, err
	}
	b.log.WithFields(logrus.Fields{"quiz_id": q.ID, "module_id": q.ModuleID}).Info("quiz created")
	return q, nil
}

// GetQuizForAuthoring returns the quiz including the answer key.
func (b *Bank) GetQuizForAuthoring(ctx context.Context, id string) (Quiz, error) {
	return b.store.GetQuiz(ctx, id)
}

// GetQuizForAttempt returns the student view. A quiz without questions
// cannot be taken.
func (b *Bank) GetQuizForAttempt(ctx context.Context, id string) (QuizView, error) {
	q, err := b.store.GetQuiz(ctx, id)
	if err != nil {
		return QuizView{}, err
	}
	if len(q.Questions) == 0 {
		return QuizView{}, ErrEmptyQuiz
	}
	return q.StudentView(), nil
}

// UpdateMetadata edits non-scoring fields; allowed at any time.
func (b *Bank) UpdateMetadata(ctx context.Context, id string, in UpdateMetadataInput) error {
	if err := b.check(in); err != nil {
		return err
	}
	return b.store.UpdateQuizMetadata(ctx, id, strings.TrimSpace(in.Title), in.Description)
}

func (b *Bank) UpdateSettings(ctx context.Context, id string, in UpdateSettingsInput) error {
	if err := b.check(in); err != nil {
		return err
	}
	if err := b.ensureNoOpenAttempts(ctx, id); err != nil {
		return err
	}
	return b.store.UpdateQuizSettings(ctx, id, *in.PassingScore, copyInt(in.TimeLimitMinutes))
}

// DeleteQuiz removes the quiz with its questions, options and attempts.
func (b *Bank) DeleteQuiz(ctx context.Context, id string) error {
	if err := b.store.DeleteQuiz(ctx, id); err != nil {
		return err
	}
	b.log.WithField("quiz_id", id).Warn("quiz deleted with its attempts")
	return nil
}

func (b *Bank) AddQuestion(ctx context.Context, quizID string, in AddQuestionInput) (Question, error) {
	if err := b.check(in); err != nil {
		return Question{}, err
	}
	q, err := b.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Question{}, err
	}
	if err := b.ensureNoOpenAttempts(ctx, quizID); err != nil {
		return Question{}, err
	}

	qn := Question{
		ID:       b.newID(),
		QuizID:   quizID,
		Prompt:   strings.TrimSpace(in.Prompt),
		Kind:     in.Kind,
		Points:   1,
		Position: len(q.Questions) + 1,
	}
	if qn.Kind == "" {
		qn.Kind = KindSingle
	}
	if in.Points != nil {
		qn.Points = *in.Points
	}
	if in.Position != nil {
		qn.Position = *in.Position
	}
	for i, oi := range in.Options {
		o := Option{ID: b.newID(), QuestionID: qn.ID, Text: oi.Text, IsCorrect: oi.IsCorrect, Position: i + 1}
		if oi.Position != nil {
			o.Position = *oi.Position
		}
		qn.Options = append(qn.Options, o)
	}
	if err := checkAnswerKey(qn); err != nil {
		return Question{}, err
	}
	sortOptions(qn.Options)
	if err := b.store.AddQuestion(ctx, qn); err != nil {
		return Question{}, err
	}
	return qn, nil
}

func (b *Bank) AddOption(ctx context.Context, questionID string, in OptionInput) (Option, error) {
	if err := b.check(in); err != nil {
		return Option{}, err
	}
	qn, err := b.store.GetQuestion(ctx, questionID)
	if err != nil {
		return Option{}, err
	}
	if err := b.ensureNoOpenAttempts(ctx, qn.QuizID); err != nil {
		return Option{}, err
	}
	o := Option{ID: b.newID(), QuestionID: questionID, Text: in.Text, IsCorrect: in.IsCorrect, Position: len(qn.Options) + 1}
	if in.Position != nil {
		o.Position = *in.Position
	}
	qn.Options = append(qn.Options, o)
	if err := checkAnswerKey(qn); err != nil {
		return Option{}, err
	}
	if err := b.store.AddOption(ctx, o); err != nil {
		return Option{}, err
	}
	return o, nil
}

func (b *Bank) ensureNoOpenAttempts(ctx context.Context, quizID string) error {
	n, err := b.store.CountOpenAttempts(ctx, quizID)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrQuizHasOpenAttempts
	}
	return nil
}

func checkAnswerKey(q Question) error {
	if q.Points < 1 {
		return invalid("points", "must be at least 1")
	}
	n := len(q.CorrectIDs())
	switch {
	case n == 0:
		return invalid("options", "at least one option must be correct")
	case q.Kind == KindSingle && n > 1:
		return invalid("options", "single-choice question must have exactly one correct option")
	}
	return nil
}
