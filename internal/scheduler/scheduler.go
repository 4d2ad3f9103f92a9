package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"manuscript-review/internal/config"
	"manuscript-review/internal/email"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
)

// Mailer delivers the scheduler's editorial summaries
type Mailer interface {
	SendStaleRoundReminder(rounds []email.StaleRound) error
	SendChainAlert(results []models.ChainVerification) error
}

// chainPageSize bounds how many submissions are loaded per validation batch
const chainPageSize = 100

// Scheduler handles periodic tasks
type Scheduler struct {
	store  repository.Reader
	mailer Mailer
	config *config.SchedulerConfig
	now    func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler. mailer may be nil, in which case
// findings are only logged.
func NewScheduler(store repository.Reader, mailer Mailer, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:    store,
		mailer:   mailer,
		config:   cfg,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start starts all enabled tasks
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("Starting scheduler",
		"stale_round_reminders_enabled", s.config.EnableStaleRoundReminders,
		"chain_validation_enabled", s.config.EnableChainValidation)

	if s.config.EnableStaleRoundReminders {
		if err := s.startTask(ctx, s.config.StaleRoundCron, "stale_round_reminders", func(ctx context.Context) error {
			_, err := s.SendStaleRoundReminders(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	if s.config.EnableChainValidation {
		if err := s.startTask(ctx, s.config.ChainValidationCron, "chain_validation", func(ctx context.Context) error {
			_, err := s.ValidateEventChains(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	slog.Info("Scheduler started")
	return nil
}

// Stop stops every task and waits for running ones to finish
func (s *Scheduler) Stop() {
	slog.Info("Stopping scheduler")
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) startTask(ctx context.Context, expr, name string, task func(context.Context) error) error {
	sched, err := parseSchedule(expr)
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			now := s.now()
			next := sched.next(now)
			slog.Info("Next task run scheduled", "task", name, "next_run", next.Format("2006-01-02 15:04:05"))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
				slog.Info("Running task", "task", name)
				if err := task(ctx); err != nil {
					slog.Error("Task failed", "task", name, "error", err)
				}
			case <-s.stopChan:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
	return nil
}

// SendStaleRoundReminders mails the editorial office a summary of rounds
// open longer than the configured threshold and returns them
func (s *Scheduler) SendStaleRoundReminders(ctx context.Context) ([]email.StaleRound, error) {
	now := s.now()
	rounds, err := s.store.ListOpenRoundsBefore(ctx, now.Add(-s.config.StaleRoundAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to list open rounds: %w", err)
	}

	stale := make([]email.StaleRound, 0, len(rounds))
	for _, round := range rounds {
		assignments, err := s.store.ListAssignments(ctx, round.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list assignments of round %d: %w", round.ID, err)
		}
		outstanding := 0
		for i := range assignments {
			if !assignments[i].Completed() {
				outstanding++
			}
		}
		stale = append(stale, email.StaleRound{
			SubmissionID: round.SubmissionID,
			RoundID:      round.ID,
			Sequence:     round.Sequence,
			OpenedAt:     round.OpenedAt,
			DaysOpen:     int(now.Sub(round.OpenedAt).Hours() / 24),
			Outstanding:  outstanding,
		})
	}

	slog.Info("Stale round check completed", "stale_rounds", len(stale))
	if len(stale) == 0 || s.mailer == nil {
		return stale, nil
	}
	if err := s.mailer.SendStaleRoundReminder(stale); err != nil {
		return stale, err
	}
	return stale, nil
}

// ValidateEventChains re-verifies the event chain of every submission and
// returns the broken ones
func (s *Scheduler) ValidateEventChains(ctx context.Context) ([]models.ChainVerification, error) {
	var broken []models.ChainVerification
	checked := 0

	for offset := 0; ; offset += chainPageSize {
		subs, err := s.store.ListSubmissions(ctx, models.SubmissionFilter{}, chainPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list submissions: %w", err)
		}
		for _, sub := range subs {
			events, err := s.store.ListEvents(ctx, sub.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list events of submission %d: %w", sub.ID, err)
			}
			result := service.VerifyEvents(sub.ID, events)
			checked++
			if !result.Valid {
				slog.Error("Event chain broken",
					"submission_id", sub.ID,
					"problems", result.Problems,
				)
				broken = append(broken, result)
			}
		}
		if len(subs) < chainPageSize {
			break
		}
	}

	slog.Info("Event chain validation completed", "checked", checked, "broken", len(broken))
	if len(broken) == 0 || s.mailer == nil {
		return broken, nil
	}
	if err := s.mailer.SendChainAlert(broken); err != nil {
		return broken, err
	}
	return broken, nil
}
