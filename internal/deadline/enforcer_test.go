package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestComputeDeadline(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Nil(t, ComputeDeadline(start, nil), "untimed")
	assert.Nil(t, ComputeDeadline(start, intp(0)))

	d := ComputeDeadline(start, intp(30))
	require.NotNil(t, d)
	assert.Equal(t, start.Add(30*time.Minute), *d)
}

func TestIsExpired(t *testing.T) {
	dl := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline *time.Time
		now      time.Time
		want     bool
	}{
		{"untimed never expires", nil, dl.Add(24 * time.Hour), false},
		{"before deadline", &dl, dl.Add(-time.Second), false},
		{"exactly at deadline", &dl, dl, true},
		{"after deadline", &dl, dl.Add(time.Millisecond), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExpired(tt.deadline, tt.now))
		})
	}
}

func TestEnforcerRemaining(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	e := New(func() time.Time { return now })

	_, ok := e.Remaining(nil)
	assert.False(t, ok)

	dl := now.Add(90 * time.Second)
	left, ok := e.Remaining(&dl)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, left)

	past := now.Add(-time.Minute)
	left, _ = e.Remaining(&past)
	assert.Zero(t, left)
	assert.True(t, e.Expired(&past))
}
