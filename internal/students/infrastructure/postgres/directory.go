package postgres

import (
	"context"
	"database/sql"
	"errors"

	students "fee-ledger/internal/students/domain"
)

// Directory reads the students table.
type Directory struct {
	db *sql.DB
}

// NewDirectory constructs a student directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Get loads a student, returning nil when absent or soft-deleted.
func (d *Directory) Get(ctx context.Context, studentID string) (*students.Student, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("student directory: nil db")
	}
	if studentID == "" {
		return nil, students.ErrEmptyStudentID
	}
	var student students.Student
	err := d.db.QueryRowContext(ctx, `
SELECT id, full_name, grade_level, active
FROM students
WHERE id = $1 AND deleted_at IS NULL`, studentID).Scan(
		&student.ID,
		&student.FullName,
		&student.GradeLevel,
		&student.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &student, nil
}

// StudentExists reports whether the student is registered.
func (d *Directory) StudentExists(ctx context.Context, studentID string) (bool, error) {
	student, err := d.Get(ctx, studentID)
	return student != nil, err
}

// IsActive reports whether the student is currently enrolled.
func (d *Directory) IsActive(ctx context.Context, studentID string) (bool, error) {
	student, err := d.Get(ctx, studentID)
	if err != nil || student == nil {
		return false, err
	}
	return student.Active, nil
}
