package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizgate/internal/db"
	"github.com/mind-engage/quizgate/internal/quiz"
)

type countingChecker struct {
	calls  int
	answer bool
	err    error
}

func (c *countingChecker) IsEnrolled(context.Context, Ref) (bool, error) {
	c.calls++
	return c.answer, c.err
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryChecker()
	mem.Enroll("enr-1", "course-1", "alice")
	mem.AddModule("mod-1", "course-1")
	mem.AddModule("mod-9", "course-2")
	g := NewGuard(mem)

	assert.NoError(t, g.Authorize(ctx, Ref{EnrollmentID: "enr-1", StudentID: "alice", ModuleID: "mod-1"}))
	assert.ErrorIs(t, g.Authorize(ctx, Ref{EnrollmentID: "enr-1", StudentID: "bob", ModuleID: "mod-1"}), quiz.ErrNotEnrolled)
	assert.ErrorIs(t, g.Authorize(ctx, Ref{EnrollmentID: "enr-1", StudentID: "alice", ModuleID: "mod-9"}), quiz.ErrNotEnrolled)
	assert.ErrorIs(t, g.Authorize(ctx, Ref{EnrollmentID: "enr-2", StudentID: "alice", ModuleID: "mod-1"}), quiz.ErrNotEnrolled)
	assert.ErrorIs(t, g.Authorize(ctx, Ref{StudentID: "alice", ModuleID: "mod-1"}), quiz.ErrNotEnrolled)
}

func TestGuardWrapsCheckerErrors(t *testing.T) {
	boom := errors.New("db down")
	err := NewGuard(&countingChecker{err: boom}).Authorize(context.Background(), Ref{EnrollmentID: "e", StudentID: "s"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, quiz.ErrNotEnrolled)
}

func TestSQLChecker(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	defer conn.Close()

	c := NewSQLChecker(conn)
	require.NoError(t, c.AddModule(ctx, "mod-1", "course-1", 1))
	require.NoError(t, c.AddModule(ctx, "mod-2", "course-2", 1))
	require.NoError(t, c.Enroll(ctx, "enr-1", "course-1", "alice", 0))

	ok, err := c.IsEnrolled(ctx, Ref{EnrollmentID: "enr-1", StudentID: "alice", ModuleID: "mod-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsEnrolled(ctx, Ref{EnrollmentID: "enr-1", StudentID: "alice", ModuleID: "mod-2"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = conn.ExecContext(ctx, `UPDATE enrollments SET status='withdrawn' WHERE id='enr-1'`)
	require.NoError(t, err)
	ok, err = c.IsEnrolled(ctx, Ref{EnrollmentID: "enr-1", StudentID: "alice", ModuleID: "mod-1"})
	require.NoError(t, err)
	assert.False(t, ok)
}
