package memory

import (
	"context"
	"sync"

	students "fee-ledger/internal/students/domain"
)

// Directory is an in-memory student register.
type Directory struct {
	mu       sync.RWMutex
	students map[string]students.Student
}

// NewDirectory seeds a directory with the given students.
func NewDirectory(seed ...students.Student) *Directory {
	d := &Directory{students: make(map[string]students.Student, len(seed))}
	for _, student := range seed {
		d.students[student.ID] = student
	}
	return d
}

// Put adds or replaces a student.
func (d *Directory) Put(student students.Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[student.ID] = student
}

// Get returns the student or nil.
func (d *Directory) Get(_ context.Context, studentID string) (*students.Student, error) {
	if studentID == "" {
		return nil, students.ErrEmptyStudentID
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	student, ok := d.students[studentID]
	if !ok {
		return nil, nil
	}
	return &student, nil
}

// StudentExists reports whether the student is registered.
func (d *Directory) StudentExists(ctx context.Context, studentID string) (bool, error) {
	student, err := d.Get(ctx, studentID)
	return student != nil, err
}

// IsActive reports whether the student is enrolled.
func (d *Directory) IsActive(ctx context.Context, studentID string) (bool, error) {
	student, err := d.Get(ctx, studentID)
	if err != nil || student == nil {
		return false, err
	}
	return student.Active, nil
}
