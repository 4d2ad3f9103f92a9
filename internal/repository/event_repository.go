package repository

import (
	"context"
	"database/sql"
	"fmt"

	"manuscript-review/internal/models"
)

// EventRepository handles the append-only lifecycle event log
type EventRepository struct {
	db querier
}

// NewEventRepository creates a new event repository
func NewEventRepository(db querier) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, submission_id, actor_id, actor_role, kind, from_state, to_state, trigger,
		       round_id, assignment_id, detail, created_at, prev_hash, hash`

func scanEvent(row interface{ Scan(...any) error }, e *models.LifecycleEvent) error {
	return row.Scan(
		&e.ID,
		&e.SubmissionID,
		&e.ActorID,
		&e.ActorRole,
		&e.Kind,
		&e.FromState,
		&e.ToState,
		&e.Trigger,
		&e.RoundID,
		&e.AssignmentID,
		&e.Detail,
		&e.CreatedAt,
		&e.PrevHash,
		&e.Hash,
	)
}

// CreateEvent appends an event to the log
func (r *EventRepository) CreateEvent(ctx context.Context, e *models.LifecycleEvent) error {
	query := `
		INSERT INTO lifecycle_events (submission_id, actor_id, actor_role, kind, from_state, to_state,
		                              trigger, round_id, assignment_id, detail, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		e.SubmissionID,
		e.ActorID,
		e.ActorRole,
		e.Kind,
		e.FromState,
		e.ToState,
		e.Trigger,
		e.RoundID,
		e.AssignmentID,
		e.Detail,
		e.CreatedAt,
		e.PrevHash,
		e.Hash,
	).Scan(&e.ID)
	return translateError(err, "failed to create lifecycle event")
}

// ListEvents returns the events of a submission in append order
func (r *EventRepository) ListEvents(ctx context.Context, submissionID uint) ([]models.LifecycleEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events WHERE submission_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle events: %w", err)
	}
	defer rows.Close()

	events := []models.LifecycleEvent{}
	for rows.Next() {
		var e models.LifecycleEvent
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastEvent returns the most recent event of a submission
func (r *EventRepository) LastEvent(ctx context.Context, submissionID uint) (*models.LifecycleEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM lifecycle_events WHERE submission_id = $1 ORDER BY id DESC LIMIT 1`

	var e models.LifecycleEvent
	err := scanEvent(r.db.QueryRowContext(ctx, query, submissionID), &e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last lifecycle event: %w", err)
	}
	return &e, nil
}
