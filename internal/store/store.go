// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/vark-gateway/internal/domain"
)

// ErrNotFound is returned when an update targets a record that does not exist.
var ErrNotFound = errors.New("record not found")

// ErrForbidden is returned when a write targets a student owned by another parent.
var ErrForbidden = errors.New("record owned by another parent")

// Repository defines the interface for persisting student and assessment data.
type Repository interface {
	// GetStudent retrieves a student by ID. It returns nil, nil when absent.
	GetStudent(ctx context.Context, studentID string) (*domain.Student, error)

	// UpsertStudent creates a student or updates its descriptive fields.
	// Assessment fields of an existing record are never overwritten here.
	// It returns ErrForbidden when the record belongs to another parent.
	UpsertStudent(ctx context.Context, student *domain.Student) error

	// UpdateStudent applies a partial update in a single statement.
	UpdateStudent(ctx context.Context, studentID string, update domain.StudentUpdate) error

	// AddAssessment appends a history record, assigning an ID when empty.
	AddAssessment(ctx context.Context, record *domain.AssessmentRecord) error

	// ListAssessments returns the newest history records for a student.
	ListAssessments(ctx context.Context, studentID string, limit int) ([]*domain.AssessmentRecord, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
