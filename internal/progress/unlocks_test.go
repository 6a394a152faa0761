package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/quizgate/internal/db"
)

func TestSQLUnlocksIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	defer conn.Close()

	s := NewSQLUnlocks(conn)
	u := Unlock{EnrollmentID: "e1", ModuleID: "m1", QuizID: "q1", AttemptID: "a1", At: time.Now()}
	require.NoError(t, s.UnlockNext(ctx, u))
	u.AttemptID = "a2"
	require.NoError(t, s.UnlockNext(ctx, u))

	ok, err := s.Unlocked(ctx, "e1", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	var attempt string
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT attempt_id FROM module_unlocks WHERE enrollment_id='e1'`).Scan(&attempt))
	assert.Equal(t, "a1", attempt, "first unlock wins")

	ok, err = s.Unlocked(ctx, "e1", "m2")
	require.NoError(t, err)
	assert.False(t, ok)
}
