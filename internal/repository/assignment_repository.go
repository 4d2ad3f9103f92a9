package repository

import (
	"context"
	"database/sql"
	"fmt"

	"manuscript-review/internal/models"
)

// AssignmentRepository handles reviewer assignment database operations
type AssignmentRepository struct {
	db querier
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db querier) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, round_id, submission_id, reviewer_id, assigned_by, assigned_at,
		       comment, commented_at, recommendation`

func scanAssignment(row interface{ Scan(...any) error }, a *models.ReviewerAssignment) error {
	return row.Scan(
		&a.ID,
		&a.RoundID,
		&a.SubmissionID,
		&a.ReviewerID,
		&a.AssignedBy,
		&a.AssignedAt,
		&a.Comment,
		&a.CommentedAt,
		&a.Recommendation,
	)
}

func (r *AssignmentRepository) queryAssignment(ctx context.Context, query string, args ...any) (*models.ReviewerAssignment, error) {
	var a models.ReviewerAssignment
	err := scanAssignment(r.db.QueryRowContext(ctx, query, args...), &a)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reviewer assignment: %w", err)
	}
	return &a, nil
}

// GetAssignment retrieves an assignment by ID
func (r *AssignmentRepository) GetAssignment(ctx context.Context, id uint) (*models.ReviewerAssignment, error) {
	return r.queryAssignment(ctx, `SELECT `+assignmentColumns+` FROM reviewer_assignments WHERE id = $1`, id)
}

// FindAssignment retrieves the assignment of a reviewer in a round
func (r *AssignmentRepository) FindAssignment(ctx context.Context, roundID, reviewerID uint) (*models.ReviewerAssignment, error) {
	return r.queryAssignment(ctx, `SELECT `+assignmentColumns+` FROM reviewer_assignments WHERE round_id = $1 AND reviewer_id = $2`, roundID, reviewerID)
}

// ListAssignments returns the assignments of a round in insertion order
func (r *AssignmentRepository) ListAssignments(ctx context.Context, roundID uint) ([]models.ReviewerAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM reviewer_assignments WHERE round_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewer assignments: %w", err)
	}
	defer rows.Close()

	assignments := []models.ReviewerAssignment{}
	for rows.Next() {
		var a models.ReviewerAssignment
		if err := scanAssignment(rows, &a); err != nil {
			return nil, fmt.Errorf("failed to scan reviewer assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// HasAssignment checks whether a reviewer holds any assignment on a submission
func (r *AssignmentRepository) HasAssignment(ctx context.Context, submissionID, reviewerID uint) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM reviewer_assignments WHERE submission_id = $1 AND reviewer_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, submissionID, reviewerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reviewer assignment: %w", err)
	}
	return exists, nil
}

// CreateAssignment inserts a new assignment
func (r *AssignmentRepository) CreateAssignment(ctx context.Context, a *models.ReviewerAssignment) error {
	query := `
		INSERT INTO reviewer_assignments (round_id, submission_id, reviewer_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		a.RoundID,
		a.SubmissionID,
		a.ReviewerID,
		a.AssignedBy,
		a.AssignedAt,
	).Scan(&a.ID)
	return translateError(err, "failed to create reviewer assignment")
}

// UpdateAssignment records the reviewer's response
func (r *AssignmentRepository) UpdateAssignment(ctx context.Context, a *models.ReviewerAssignment) error {
	query := `
		UPDATE reviewer_assignments
		SET comment = $1, commented_at = $2, recommendation = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, a.Comment, a.CommentedAt, a.Recommendation, a.ID)
	return translateError(err, "failed to update reviewer assignment")
}

// DeleteAssignment removes an assignment that has no recommendation yet.
// It returns ErrCompleted for an assignment with a recommendation and
// ErrNotFound for a missing one.
func (r *AssignmentRepository) DeleteAssignment(ctx context.Context, id uint) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reviewer_assignments WHERE id = $1 AND recommendation IS NULL`, id)
	if err != nil {
		return translateError(err, "failed to delete reviewer assignment")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete reviewer assignment: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reviewer_assignments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check reviewer assignment: %w", err)
	}
	if exists {
		return fmt.Errorf("reviewer assignment %d: %w", id, ErrCompleted)
	}
	return fmt.Errorf("reviewer assignment %d: %w", id, ErrNotFound)
}
