package progress

import (
	"context"
	"database/sql"
	"sync"
)

// SQLUnlocks records unlocks in module_unlocks, once per (enrollment, module).
type SQLUnlocks struct {
	db *sql.DB
}

func NewSQLUnlocks(db *sql.DB) *SQLUnlocks { return &SQLUnlocks{db: db} }

func (s *SQLUnlocks) UnlockNext(ctx context.Context, u Unlock) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO module_unlocks (enrollment_id,module_id,quiz_id,attempt_id,unlocked_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (enrollment_id,module_id) DO NOTHING`,
		u.EnrollmentID, u.ModuleID, u.QuizID, u.AttemptID, u.At.UnixMilli())
	return err
}

func (s *SQLUnlocks) Unlocked(ctx context.Context, enrollmentID, moduleID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM module_unlocks WHERE enrollment_id=$1 AND module_id=$2`,
		enrollmentID, moduleID).Scan(&n)
	return n > 0, err
}

type MemoryUnlocks struct {
	mu sync.Mutex
	m  map[[2]string]Unlock
}

func NewMemoryUnlocks() *MemoryUnlocks { return &MemoryUnlocks{m: map[[2]string]Unlock{}} }

func (s *MemoryUnlocks) UnlockNext(_ context.Context, u Unlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := [2]string{u.EnrollmentID, u.ModuleID}
	if _, ok := s.m[k]; !ok {
		s.m[k] = u
	}
	return nil
}

func (s *MemoryUnlocks) Unlocked(_ context.Context, enrollmentID, moduleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[[2]string{enrollmentID, moduleID}]
	return ok, nil
}
