package service

import (
	"context"
	"log/slog"

	"manuscript-review/internal/logger"
	"manuscript-review/internal/models"
)

// EventNotifier receives lifecycle events after their transaction committed
type EventNotifier interface {
	Notify(ctx context.Context, events []models.LifecycleEvent)
}

// LogNotifier writes every committed event as a structured log record
type LogNotifier struct{}

// Notify logs the events
func (LogNotifier) Notify(ctx context.Context, events []models.LifecycleEvent) {
	log := logger.FromContext(ctx)
	for _, e := range events {
		attrs := []any{
			"submission_id", e.SubmissionID,
			"event_id", e.ID,
			"kind", e.Kind,
			"actor_id", e.ActorID,
			"actor_role", e.ActorRole,
		}
		if e.Kind.Transition() {
			attrs = append(attrs, "from", e.FromState, "to", e.ToState, "trigger", e.Trigger)
		}
		if e.RoundID != nil {
			attrs = append(attrs, "round_id", *e.RoundID)
		}
		log.Info("Lifecycle event", attrs...)
	}
}

// Notifiers fans events out to several notifiers in order
type Notifiers []EventNotifier

// Notify forwards the events to every notifier
func (n Notifiers) Notify(ctx context.Context, events []models.LifecycleEvent) {
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event notifier panicked", "panic", r)
				}
			}()
			notifier.Notify(ctx, events)
		}()
	}
}
