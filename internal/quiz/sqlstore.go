package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Timestamps are stored as unix milliseconds.

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) CreateQuiz(ctx context.Context, q Quiz) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO quizzes (id,module_id,title,description,passing_score,time_limit_minutes,shuffle_questions,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		q.ID, q.ModuleID, q.Title, q.Description, q.PassingScore, nullInt(q.TimeLimitMinutes), q.ShuffleQuestions, q.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var (
		q       Quiz
		limit   sql.NullInt64
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id,module_id,title,description,passing_score,time_limit_minutes,shuffle_questions,created_at
		FROM quizzes WHERE id=$1`, id).
		Scan(&q.ID, &q.ModuleID, &q.Title, &q.Description, &q.PassingScore, &limit, &q.ShuffleQuestions, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	q.TimeLimitMinutes = intPtr(limit)
	q.CreatedAt = time.UnixMilli(created).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT id,quiz_id,prompt,kind,points,position
		FROM questions WHERE quiz_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return Quiz{}, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()
	byID := map[string]int{}
	for rows.Next() {
		var qn Question
		if err := rows.Scan(&qn.ID, &qn.QuizID, &qn.Prompt, &qn.Kind, &qn.Points, &qn.Position); err != nil {
			return Quiz{}, err
		}
		byID[qn.ID] = len(q.Questions)
		q.Questions = append(q.Questions, qn)
	}
	if err := rows.Err(); err != nil {
		return Quiz{}, err
	}

	orows, err := s.db.QueryContext(ctx, `SELECT o.id,o.question_id,o.text,o.is_correct,o.position
		FROM options o JOIN questions q ON q.id=o.question_id
		WHERE q.quiz_id=$1 ORDER BY o.position, o.id`, id)
	if err != nil {
		return Quiz{}, fmt.Errorf("select options: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var o Option
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Position); err != nil {
			return Quiz{}, err
		}
		if i, ok := byID[o.QuestionID]; ok {
			q.Questions[i].Options = append(q.Questions[i].Options, o)
		}
	}
	return q, orows.Err()
}

func (s *SQLStore) UpdateQuizMetadata(ctx context.Context, id, title, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET title=$1, description=$2 WHERE id=$3`, title, description, id)
	return affectedOr(res, err, ErrQuizNotFound)
}

func (s *SQLStore) UpdateQuizSettings(ctx context.Context, id string, passingScore int, timeLimitMinutes *int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET passing_score=$1, time_limit_minutes=$2 WHERE id=$3`,
		passingScore, nullInt(timeLimitMinutes), id)
	return affectedOr(res, err, ErrQuizNotFound)
}

// DeleteQuiz relies on ON DELETE CASCADE for questions, options, attempts and answers.
func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
	return affectedOr(res, err, ErrQuizNotFound)
}

func (s *SQLStore) AddQuestion(ctx context.Context, qn Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,quiz_id,prompt,kind,points,position) VALUES ($1,$2,$3,$4,$5,$6)`,
		qn.ID, qn.QuizID, qn.Prompt, string(qn.Kind), qn.Points, qn.Position); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	for _, o := range qn.Options {
		if err := insertOption(ctx, tx, o); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (Question, error) {
	var qn Question
	err := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,prompt,kind,points,position FROM questions WHERE id=$1`, id).
		Scan(&qn.ID, &qn.QuizID, &qn.Prompt, &qn.Kind, &qn.Points, &qn.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, ErrQuestionNotFound
		}
		return Question{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,question_id,text,is_correct,position FROM options
		WHERE question_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return Question{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Position); err != nil {
			return Question{}, err
		}
		qn.Options = append(qn.Options, o)
	}
	return qn, rows.Err()
}

func (s *SQLStore) AddOption(ctx context.Context, o Option) error {
	return insertOption(ctx, s.db, o)
}

func insertOption(ctx context.Context, q querier, o Option) error {
	if _, err := q.ExecContext(ctx, `INSERT INTO options (id,question_id,text,is_correct,position) VALUES ($1,$2,$3,$4,$5)`,
		o.ID, o.QuestionID, o.Text, o.IsCorrect, o.Position); err != nil {
		return fmt.Errorf("insert option: %w", err)
	}
	return nil
}

// ---- attempts ----

const attemptColumns = `id,quiz_id,enrollment_id,status,attempt_number,started_at,deadline_at,submitted_at,
	score,passed,correct,total,earned_points,total_points,snapshot_json`

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	snap, err := json.Marshal(a.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,enrollment_id,status,attempt_number,started_at,deadline_at,snapshot_json,last_activity_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$6)`,
		a.ID, a.QuizID, a.EnrollmentID, string(StatusInProgress), a.AttemptNumber,
		a.StartedAt.UnixMilli(), nullMillis(a.Deadline), string(snap))
	if err != nil {
		if isUniqueViolation(err) {
			open, ferr := s.FindInProgress(ctx, a.QuizID, a.EnrollmentID)
			if ferr != nil {
				return &AttemptInProgressError{}
			}
			return &AttemptInProgressError{AttemptID: open.ID}
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return getAttempt(ctx, s.db, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id)
}

func (s *SQLStore) FindInProgress(ctx context.Context, quizID, enrollmentID string) (Attempt, error) {
	return getAttempt(ctx, s.db, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND enrollment_id=$2 AND status='in_progress'`, quizID, enrollmentID)
}

func (s *SQLStore) ListAttempts(ctx context.Context, quizID, enrollmentID string) ([]Attempt, error) {
	return listAttempts(ctx, s.db, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND enrollment_id=$2 ORDER BY attempt_number DESC`, quizID, enrollmentID)
}

func (s *SQLStore) CountOpenAttempts(ctx context.Context, quizID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND status='in_progress'`, quizID).Scan(&n)
	return n, err
}

// UpsertAnswer touches the attempt row first so that, on postgres, it queues
// behind a concurrent Finalize holding the row lock and then sees the new status.
func (s *SQLStore) UpsertAnswer(ctx context.Context, ans Answer, now time.Time) error {
	ids, err := json.Marshal(ans.OptionIDs)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE attempts SET last_activity_at=$1
		WHERE id=$2 AND status='in_progress' AND (deadline_at IS NULL OR deadline_at > $1)`,
		now.UnixMilli(), ans.AttemptID)
	if err != nil {
		return fmt.Errorf("touch attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, ans.AttemptID).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return ErrInvalidState
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO answers (attempt_id,question_id,option_ids,updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (attempt_id,question_id) DO UPDATE SET option_ids=EXCLUDED.option_ids, updated_at=EXCLUDED.updated_at`,
		ans.AttemptID, ans.QuestionID, string(ids), now.UnixMilli()); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

func listAnswers(ctx context.Context, q querier, attemptID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, `SELECT attempt_id,question_id,option_ids,updated_at FROM answers
		WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	defer rows.Close()
	out := make([]Answer, 0, 8)
	for rows.Next() {
		var (
			ans   Answer
			ids   string
			stamp int64
		)
		if err := rows.Scan(&ans.AttemptID, &ans.QuestionID, &ids, &stamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &ans.OptionIDs); err != nil {
			return nil, fmt.Errorf("decode answer %s/%s: %w", ans.AttemptID, ans.QuestionID, err)
		}
		ans.UpdatedAt = time.UnixMilli(stamp).UTC()
		out = append(out, ans)
	}
	return out, rows.Err()
}

// Finalize claims the attempt with in_progress -> submitted, grades the answers
// read under that claim, and commits it as graded. The intermediate status is
// never visible outside the transaction.
func (s *SQLStore) Finalize(ctx context.Context, attemptID string, now time.Time, grade GradeFunc) (Attempt, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE attempts SET status='submitted', submitted_at=$1
		WHERE id=$2 AND status='in_progress'`, now.UnixMilli(), attemptID)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("claim attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		a, err := s.GetAttempt(ctx, attemptID)
		if err != nil {
			return Attempt{}, false, err
		}
		if a.Status != StatusGraded {
			return Attempt{}, false, ErrInvalidState
		}
		return a, false, nil
	}

	a, err := getAttempt(ctx, tx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID)
	if err != nil {
		return Attempt{}, false, err
	}
	answers, err := listAnswers(ctx, tx, attemptID)
	if err != nil {
		return Attempt{}, false, err
	}
	g, err := grade(a, answers)
	if err != nil {
		return Attempt{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE attempts SET status='graded', score=$1, passed=$2,
		correct=$3, total=$4, earned_points=$5, total_points=$6
		WHERE id=$7 AND status='submitted'`,
		g.Score, g.Passed, g.Correct, g.Total, g.EarnedPoints, g.TotalPoints, attemptID); err != nil {
		return Attempt{}, false, fmt.Errorf("grade attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, false, err
	}
	applyGrade(&a, g, time.UnixMilli(now.UnixMilli()).UTC())
	return a, true, nil
}

func (s *SQLStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	return listAttempts(ctx, s.db, `SELECT `+attemptColumns+` FROM attempts
		WHERE status='in_progress' AND deadline_at IS NOT NULL AND deadline_at <= $1
		ORDER BY deadline_at LIMIT $2`, now.UnixMilli(), limit)
}

// ---- scanning helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a                   Attempt
		status              string
		started             int64
		deadline, submitted sql.NullInt64
		score               sql.NullInt64
		passed              sql.NullBool
		snap                string
	)
	if err := r.Scan(&a.ID, &a.QuizID, &a.EnrollmentID, &status, &a.AttemptNumber, &started, &deadline, &submitted,
		&score, &passed, &a.Correct, &a.Total, &a.EarnedPoints, &a.TotalPoints, &snap); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.StartedAt = time.UnixMilli(started).UTC()
	a.Deadline = timePtr(deadline)
	a.SubmittedAt = timePtr(submitted)
	a.Score = intPtr(score)
	if passed.Valid {
		v := passed.Bool
		a.Passed = &v
	}
	if err := json.Unmarshal([]byte(snap), &a.Snapshot); err != nil {
		return Attempt{}, fmt.Errorf("decode snapshot for %s: %w", a.ID, err)
	}
	return a, nil
}

func getAttempt(ctx context.Context, q querier, query string, args ...any) (Attempt, error) {
	a, err := scanAttempt(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func listAttempts(ctx context.Context, q querier, query string, args ...any) ([]Attempt, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select attempts: %w", err)
	}
	defer rows.Close()
	out := make([]Attempt, 0, 4)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func affectedOr(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}
