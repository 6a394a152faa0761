// Package deadline holds the server-side authority on attempt expiry.
// Client countdowns are display only; every write is checked here.
package deadline

import "time"

type Clock func() time.Time

type Enforcer struct {
	Now Clock
}

func New(now Clock) *Enforcer {
	if now == nil {
		now = time.Now
	}
	return &Enforcer{Now: now}
}

// ComputeDeadline returns startedAt + limit minutes, or nil when untimed.
func ComputeDeadline(startedAt time.Time, timeLimitMinutes *int) *time.Time {
	if timeLimitMinutes == nil || *timeLimitMinutes <= 0 {
		return nil
	}
	d := startedAt.Add(time.Duration(*timeLimitMinutes) * time.Minute)
	return &d
}

// IsExpired reports deadline != nil && now >= deadline.
func IsExpired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && !now.Before(*deadline)
}

// Expired checks deadline against the enforcer's clock.
func (e *Enforcer) Expired(deadline *time.Time) bool {
	return IsExpired(deadline, e.Now())
}

// Remaining is the time left before deadline, zero once expired.
// ok is false for untimed attempts.
func (e *Enforcer) Remaining(deadline *time.Time) (left time.Duration, ok bool) {
	if deadline == nil {
		return 0, false
	}
	left = deadline.Sub(e.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}
