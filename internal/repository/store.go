package repository

import (
	"context"
	"errors"
	"time"

	"manuscript-review/internal/models"
)

var (
	// ErrNotFound is returned when a submission scope is requested for a missing submission
	ErrNotFound = errors.New("record not found")
	// ErrUniqueViolation is returned when an insert collides with a uniqueness guard
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrCompleted is returned when a completed assignment would be deleted
	ErrCompleted = errors.New("record is completed")
)

// Reader groups the read operations shared by stores and transactions
type Reader interface {
	GetSubmission(ctx context.Context, id uint) (*models.Submission, error)
	ListSubmissions(ctx context.Context, filter models.SubmissionFilter, limit, offset int) ([]models.Submission, error)
	CountSubmissions(ctx context.Context, filter models.SubmissionFilter) (int, error)

	GetRound(ctx context.Context, id uint) (*models.ReviewRound, error)
	GetOpenRound(ctx context.Context, submissionID uint) (*models.ReviewRound, error)
	ListRounds(ctx context.Context, submissionID uint) ([]models.ReviewRound, error)
	ListOpenRoundsBefore(ctx context.Context, openedBefore time.Time) ([]models.ReviewRound, error)

	GetAssignment(ctx context.Context, id uint) (*models.ReviewerAssignment, error)
	FindAssignment(ctx context.Context, roundID, reviewerID uint) (*models.ReviewerAssignment, error)
	ListAssignments(ctx context.Context, roundID uint) ([]models.ReviewerAssignment, error)
	HasAssignment(ctx context.Context, submissionID, reviewerID uint) (bool, error)

	ListEvents(ctx context.Context, submissionID uint) ([]models.LifecycleEvent, error)
	LastEvent(ctx context.Context, submissionID uint) (*models.LifecycleEvent, error)
}

// Writer groups the mutations only available inside a transaction
type Writer interface {
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	UpdateSubmission(ctx context.Context, submission *models.Submission) error

	CreateRound(ctx context.Context, round *models.ReviewRound) error
	UpdateRound(ctx context.Context, round *models.ReviewRound) error

	CreateAssignment(ctx context.Context, assignment *models.ReviewerAssignment) error
	UpdateAssignment(ctx context.Context, assignment *models.ReviewerAssignment) error
	DeleteAssignment(ctx context.Context, id uint) error

	CreateEvent(ctx context.Context, event *models.LifecycleEvent) error
}

// Tx is a unit of work scoped to a single submission
type Tx interface {
	Reader
	Writer
}

// Store is the transactional persistence boundary of the lifecycle core.
//
// WithinSubmission serializes every unit of work on the same submission:
// the callback runs while holding the submission's exclusive scope and its
// writes commit together or not at all. Units of work on different
// submissions do not block each other.
type Store interface {
	Reader
	WithinSubmission(ctx context.Context, submissionID uint, fn func(tx Tx) error) error
	WithinNewSubmission(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
