package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"manuscript-review/internal/models"

	"github.com/lib/pq"
)

// SubmissionRepository handles submission database operations
type SubmissionRepository struct {
	db querier
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db querier) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, title, abstract, keywords, author_id, journal_id, issue_id,
		       manuscript_ref, status, submitted_at, created_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }, s *models.Submission) error {
	var keywords []string
	if err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Abstract,
		pq.Array(&keywords),
		&s.AuthorID,
		&s.JournalID,
		&s.IssueID,
		&s.ManuscriptRef,
		&s.Status,
		&s.SubmittedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return err
	}
	if keywords == nil {
		keywords = []string{}
	}
	s.Keywords = keywords
	return nil
}

// CreateSubmission inserts a new submission and fills its ID
func (r *SubmissionRepository) CreateSubmission(ctx context.Context, s *models.Submission) error {
	query := `
		INSERT INTO submissions (title, abstract, keywords, author_id, journal_id, issue_id,
		                         manuscript_ref, status, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		s.Title,
		s.Abstract,
		pq.Array(s.Keywords),
		s.AuthorID,
		s.JournalID,
		s.IssueID,
		s.ManuscriptRef,
		s.Status,
		s.SubmittedAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)
	return translateError(err, "failed to create submission")
}

// UpdateSubmission persists the mutable fields of a submission
func (r *SubmissionRepository) UpdateSubmission(ctx context.Context, s *models.Submission) error {
	query := `
		UPDATE submissions
		SET manuscript_ref = $1, status = $2, submitted_at = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, s.ManuscriptRef, s.Status, s.SubmittedAt, s.UpdatedAt, s.ID)
	return translateError(err, "failed to update submission")
}

// GetSubmission retrieves a submission by ID
func (r *SubmissionRepository) GetSubmission(ctx context.Context, id uint) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	var s models.Submission
	err := scanSubmission(r.db.QueryRowContext(ctx, query, id), &s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &s, nil
}

// lockSubmission takes the row lock that serializes work on a submission
func (r *SubmissionRepository) lockSubmission(ctx context.Context, id uint) error {
	var locked uint
	err := r.db.QueryRowContext(ctx, `SELECT id FROM submissions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock submission: %w", err)
	}
	return nil
}

// buildSubmissionFilter appends the WHERE clauses for a listing
func buildSubmissionFilter(filter models.SubmissionFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if filter.Status != nil {
		where += fmt.Sprintf(` AND s.status = $%d`, argPos)
		args = append(args, *filter.Status)
		argPos++
	}

	if filter.JournalID != "" {
		where += fmt.Sprintf(` AND s.journal_id = $%d`, argPos)
		args = append(args, filter.JournalID)
		argPos++
	}

	if filter.AuthorID != nil {
		where += fmt.Sprintf(` AND s.author_id = $%d`, argPos)
		args = append(args, *filter.AuthorID)
		argPos++
	}

	// Reviewers only see submissions they hold an assignment on
	if filter.ReviewerID != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM reviewer_assignments ra WHERE ra.submission_id = s.id AND ra.reviewer_id = $%d)`, argPos)
		args = append(args, *filter.ReviewerID)
		argPos++
	}

	if filter.Search != "" {
		where += fmt.Sprintf(` AND (s.title ILIKE $%d ESCAPE '\' OR s.abstract ILIKE $%d ESCAPE '\')`, argPos, argPos)
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
	}

	return where, args
}

// likeEscaper makes a search term match literally inside an ILIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListSubmissions returns one page of submissions, newest submission first
func (r *SubmissionRepository) ListSubmissions(ctx context.Context, filter models.SubmissionFilter, limit, offset int) ([]models.Submission, error) {
	where, args := buildSubmissionFilter(filter)
	argPos := len(args) + 1

	query := `SELECT s.id, s.title, s.abstract, s.keywords, s.author_id, s.journal_id, s.issue_id,
		       s.manuscript_ref, s.status, s.submitted_at, s.created_at, s.updated_at
		FROM submissions s` + where +
		fmt.Sprintf(` ORDER BY s.submitted_at DESC, s.id DESC LIMIT $%d OFFSET $%d`, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	submissions := []models.Submission{}
	for rows.Next() {
		var s models.Submission
		if err := scanSubmission(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	return submissions, rows.Err()
}

// CountSubmissions counts the submissions matching a filter
func (r *SubmissionRepository) CountSubmissions(ctx context.Context, filter models.SubmissionFilter) (int, error) {
	where, args := buildSubmissionFilter(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions s`+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return total, nil
}
