package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"manuscript-review/internal/models"
)

// RoundRepository handles review round database operations
type RoundRepository struct {
	db querier
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db querier) *RoundRepository {
	return &RoundRepository{db: db}
}

const roundColumns = `id, submission_id, sequence, opened_at, opened_by, closed_at, closed_by, forced, outcome`

func scanRound(row interface{ Scan(...any) error }, r *models.ReviewRound) error {
	return row.Scan(
		&r.ID,
		&r.SubmissionID,
		&r.Sequence,
		&r.OpenedAt,
		&r.OpenedBy,
		&r.ClosedAt,
		&r.ClosedBy,
		&r.Forced,
		&r.Outcome,
	)
}

func (r *RoundRepository) queryRounds(ctx context.Context, query string, args ...any) ([]models.ReviewRound, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get review rounds: %w", err)
	}
	defer rows.Close()

	rounds := []models.ReviewRound{}
	for rows.Next() {
		var round models.ReviewRound
		if err := scanRound(rows, &round); err != nil {
			return nil, fmt.Errorf("failed to scan review round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (r *RoundRepository) queryRound(ctx context.Context, query string, args ...any) (*models.ReviewRound, error) {
	var round models.ReviewRound
	err := scanRound(r.db.QueryRowContext(ctx, query, args...), &round)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review round: %w", err)
	}
	return &round, nil
}

// GetRound retrieves a review round by ID
func (r *RoundRepository) GetRound(ctx context.Context, id uint) (*models.ReviewRound, error) {
	return r.queryRound(ctx, `SELECT `+roundColumns+` FROM review_rounds WHERE id = $1`, id)
}

// GetOpenRound retrieves the open round of a submission, if any
func (r *RoundRepository) GetOpenRound(ctx context.Context, submissionID uint) (*models.ReviewRound, error) {
	return r.queryRound(ctx, `SELECT `+roundColumns+` FROM review_rounds WHERE submission_id = $1 AND closed_at IS NULL`, submissionID)
}

// ListRounds returns the rounds of a submission by sequence
func (r *RoundRepository) ListRounds(ctx context.Context, submissionID uint) ([]models.ReviewRound, error) {
	return r.queryRounds(ctx, `SELECT `+roundColumns+` FROM review_rounds WHERE submission_id = $1 ORDER BY sequence`, submissionID)
}

// ListOpenRoundsBefore returns open rounds opened before the given time
func (r *RoundRepository) ListOpenRoundsBefore(ctx context.Context, openedBefore time.Time) ([]models.ReviewRound, error) {
	return r.queryRounds(ctx, `SELECT `+roundColumns+` FROM review_rounds WHERE closed_at IS NULL AND opened_at < $1 ORDER BY opened_at`, openedBefore)
}

// CreateRound inserts a new review round
func (r *RoundRepository) CreateRound(ctx context.Context, round *models.ReviewRound) error {
	query := `
		INSERT INTO review_rounds (submission_id, sequence, opened_at, opened_by, forced)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		round.SubmissionID,
		round.Sequence,
		round.OpenedAt,
		round.OpenedBy,
		round.Forced,
	).Scan(&round.ID)
	return translateError(err, "failed to create review round")
}

// UpdateRound persists the closing fields of a round
func (r *RoundRepository) UpdateRound(ctx context.Context, round *models.ReviewRound) error {
	query := `
		UPDATE review_rounds
		SET closed_at = $1, closed_by = $2, forced = $3, outcome = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, round.ClosedAt, round.ClosedBy, round.Forced, round.Outcome, round.ID)
	return translateError(err, "failed to update review round")
}
