package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// postgresRepos bundles the table repositories over one querier
type postgresRepos struct {
	*SubmissionRepository
	*RoundRepository
	*AssignmentRepository
	*EventRepository
}

func newPostgresRepos(db querier) postgresRepos {
	return postgresRepos{
		SubmissionRepository: NewSubmissionRepository(db),
		RoundRepository:      NewRoundRepository(db),
		AssignmentRepository: NewAssignmentRepository(db),
		EventRepository:      NewEventRepository(db),
	}
}

// PostgresStore implements Store on top of database/sql and lib/pq
type PostgresStore struct {
	postgresRepos
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{postgresRepos: newPostgresRepos(db), db: db}
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinSubmission runs fn in a transaction holding the submission's row lock
func (s *PostgresStore) WithinSubmission(ctx context.Context, submissionID uint, fn func(tx Tx) error) error {
	return s.within(ctx, func(repos postgresRepos) error {
		if err := repos.lockSubmission(ctx, submissionID); err != nil {
			return err
		}
		return fn(repos)
	})
}

// WithinNewSubmission runs fn in a transaction for a submission not yet stored
func (s *PostgresStore) WithinNewSubmission(ctx context.Context, fn func(tx Tx) error) error {
	return s.within(ctx, func(repos postgresRepos) error {
		return fn(repos)
	})
}

func (s *PostgresStore) within(ctx context.Context, fn func(repos postgresRepos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
