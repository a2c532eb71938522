package students

import (
	"context"
	"errors"
)

// ErrEmptyStudentID is returned when a student id is empty.
var ErrEmptyStudentID = errors.New("students: empty student id")

// Student is the slice of the student register the ledger needs.
type Student struct {
	ID         string
	FullName   string
	GradeLevel string
	Active     bool
}

// Directory answers existence and enrolment questions about students.
// Get returns nil, nil for an unknown student.
type Directory interface {
	Get(ctx context.Context, studentID string) (*Student, error)
}
