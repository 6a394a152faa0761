// Package enrollment answers whether a student may act on a quiz through an
// enrollment. The course catalog owns the data; this package only reads it.
package enrollment

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mind-engage/quizgate/internal/quiz"
)

// Ref identifies one authorization question.
type Ref struct {
	EnrollmentID string
	StudentID    string
	ModuleID     string
}

type Checker interface {
	IsEnrolled(ctx context.Context, ref Ref) (bool, error)
}

// Guard turns a Checker answer into quiz.ErrNotEnrolled.
type Guard struct {
	checker Checker
}

func NewGuard(c Checker) *Guard { return &Guard{checker: c} }

func (g *Guard) Authorize(ctx context.Context, ref Ref) error {
	if ref.EnrollmentID == "" || ref.StudentID == "" {
		return quiz.ErrNotEnrolled
	}
	ok, err := g.checker.IsEnrolled(ctx, ref)
	if err != nil {
		return fmt.Errorf("check enrollment %s: %w", ref.EnrollmentID, err)
	}
	if !ok {
		return quiz.ErrNotEnrolled
	}
	return nil
}

// SQLChecker reads the enrollments and course_modules tables.
type SQLChecker struct {
	db *sql.DB
}

func NewSQLChecker(db *sql.DB) *SQLChecker { return &SQLChecker{db: db} }

func (c *SQLChecker) IsEnrolled(ctx context.Context, ref Ref) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments e
		JOIN course_modules m ON m.course_id = e.course_id
		WHERE e.id=$1 AND e.student_id=$2 AND e.status='active' AND m.id=$3`,
		ref.EnrollmentID, ref.StudentID, ref.ModuleID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Enroll registers or reactivates an enrollment.
func (c *SQLChecker) Enroll(ctx context.Context, enrollmentID, courseID, studentID string, createdAtMillis int64) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO enrollments (id,course_id,student_id,status,created_at)
		VALUES ($1,$2,$3,'active',$4)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, student_id=EXCLUDED.student_id, status='active'`,
		enrollmentID, courseID, studentID, createdAtMillis)
	return err
}

// AddModule places a module in a course.
func (c *SQLChecker) AddModule(ctx context.Context, moduleID, courseID string, position int) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO course_modules (id,course_id,position) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, position=EXCLUDED.position`,
		moduleID, courseID, position)
	return err
}

// MemoryChecker is the in-process catalog used in memory mode.
type MemoryChecker struct {
	mu          sync.RWMutex
	enrollments map[string]memEnrollment
	modules     map[string]string // moduleID -> courseID
}

type memEnrollment struct {
	courseID  string
	studentID string
}

func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{enrollments: map[string]memEnrollment{}, modules: map[string]string{}}
}

func (c *MemoryChecker) Enroll(enrollmentID, courseID, studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enrollments[enrollmentID] = memEnrollment{courseID: courseID, studentID: studentID}
}

func (c *MemoryChecker) AddModule(moduleID, courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[moduleID] = courseID
}

func (c *MemoryChecker) IsEnrolled(_ context.Context, ref Ref) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.enrollments[ref.EnrollmentID]
	if !ok || e.studentID != ref.StudentID {
		return false, nil
	}
	course, ok := c.modules[ref.ModuleID]
	return ok && course == e.courseID, nil
}
