package service

import (
	"context"
	"errors"
	"time"

	"manuscript-review/internal/logger"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
)

// DecisionEngine owns the submission state machine. It is the only code
// path that changes a submission's status, and it runs the unit of work
// every other lifecycle service mutates state through.
type DecisionEngine struct {
	store    repository.Store
	policy   *Policy
	notifier EventNotifier
	now      func() time.Time
}

// EngineOption customises a DecisionEngine
type EngineOption func(*DecisionEngine)

// WithNotifier sets the post-commit event notifier
func WithNotifier(n EventNotifier) EngineOption {
	return func(e *DecisionEngine) { e.notifier = n }
}

// WithClock replaces the engine's time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *DecisionEngine) { e.now = now }
}

// NewDecisionEngine creates a new decision engine
func NewDecisionEngine(store repository.Store, policy *Policy, opts ...EngineOption) *DecisionEngine {
	e := &DecisionEngine{
		store:    store,
		policy:   policy,
		notifier: LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timestamp is truncated to the precision Postgres stores
func (e *DecisionEngine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// unitOfWork carries one locked submission through a transaction
type unitOfWork struct {
	tx         repository.Tx
	actor      models.Actor
	now        time.Time
	submission *models.Submission
	events     []models.LifecycleEvent
}

// record appends an event to the submission's chain inside the transaction
func (u *unitOfWork) record(ctx context.Context, e models.LifecycleEvent) error {
	e.SubmissionID = u.submission.ID
	e.ActorID = u.actor.ID
	e.ActorRole = u.actor.Role
	e.CreatedAt = u.now
	if err := appendEvent(ctx, u.tx, &e); err != nil {
		return err
	}
	u.events = append(u.events, e)
	return nil
}

// relation derives the actor's relation to the locked submission
func (u *unitOfWork) relation(ctx context.Context) (Relation, error) {
	return relationTo(ctx, u.tx, u.actor, u.submission)
}

// run executes fn while holding the submission's exclusive scope. Events
// recorded by fn are delivered to the notifier only after commit.
func (e *DecisionEngine) run(ctx context.Context, actor models.Actor, submissionID uint, fn func(u *unitOfWork) error) error {
	var committed []models.LifecycleEvent
	err := e.store.WithinSubmission(ctx, submissionID, func(tx repository.Tx) error {
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return repository.ErrNotFound
		}
		u := &unitOfWork{tx: tx, actor: actor, now: e.timestamp(), submission: sub}
		if err := fn(u); err != nil {
			return err
		}
		committed = u.events
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("submission", submissionID)
	}
	if err != nil {
		return err
	}
	e.publish(ctx, committed)
	return nil
}

// runNew executes fn for a submission that does not exist yet
func (e *DecisionEngine) runNew(ctx context.Context, actor models.Actor, fn func(u *unitOfWork) error) error {
	var committed []models.LifecycleEvent
	err := e.store.WithinNewSubmission(ctx, func(tx repository.Tx) error {
		u := &unitOfWork{tx: tx, actor: actor, now: e.timestamp(), submission: &models.Submission{}}
		if err := fn(u); err != nil {
			return err
		}
		committed = u.events
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(ctx, committed)
	return nil
}

func (e *DecisionEngine) publish(ctx context.Context, events []models.LifecycleEvent) {
	if len(events) == 0 || e.notifier == nil {
		return
	}
	e.notifier.Notify(context.WithoutCancel(ctx), events)
}

// apply validates and performs a status transition inside a unit of work
func (e *DecisionEngine) apply(ctx context.Context, u *unitOfWork, to models.SubmissionStatus, trigger Trigger, roundID *uint, note string) error {
	from := u.submission.Status
	if err := CheckTransition(from, to, trigger); err != nil {
		return err
	}

	u.submission.Status = to
	u.submission.UpdatedAt = u.now
	if from == models.StatusPending && to == models.StatusSubmitted {
		u.submission.SubmittedAt = u.now
	}
	if err := u.tx.UpdateSubmission(ctx, u.submission); err != nil {
		return err
	}

	if err := u.record(ctx, models.LifecycleEvent{
		Kind:      models.EventStatusChanged,
		FromState: from,
		ToState:   to,
		Trigger:   string(trigger),
		RoundID:   roundID,
		Detail:    note,
	}); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("Submission status changed",
		"submission_id", u.submission.ID,
		"from", from,
		"to", to,
		"trigger", trigger,
		"actor_id", u.actor.ID,
	)
	return nil
}

// closeRound marks the round closed, applying a status change when target is set
func (e *DecisionEngine) closeRound(ctx context.Context, u *unitOfWork, round *models.ReviewRound, forced bool, target *models.SubmissionStatus, trigger Trigger, note string) error {
	closedAt := u.now
	closedBy := u.actor.ID
	round.ClosedAt = &closedAt
	round.ClosedBy = &closedBy
	round.Forced = forced
	if target != nil {
		outcome := *target
		round.Outcome = &outcome
	}
	if err := u.tx.UpdateRound(ctx, round); err != nil {
		return err
	}

	detail := "closed"
	if forced {
		detail = "force closed"
	}
	roundID := round.ID
	if err := u.record(ctx, models.LifecycleEvent{
		Kind:    models.EventRoundClosed,
		RoundID: &roundID,
		Detail:  detail,
	}); err != nil {
		return err
	}

	if target == nil {
		return nil
	}
	return e.apply(ctx, u, *target, trigger, &roundID, note)
}

// Decide records an explicit editorial decision. Any open round is
// force-closed in the same transaction.
func (e *DecisionEngine) Decide(ctx context.Context, actor models.Actor, submissionID uint, to models.SubmissionStatus, note string) (*models.Submission, error) {
	if err := e.policy.Authorize(OpSubmissionDecide, actor, Relation{}); err != nil {
		return nil, err
	}

	var result models.Submission
	err := e.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		from := u.submission.Status
		trigger := TriggerEditorialDecision
		if to == models.StatusRejected && from != models.StatusUnderReview {
			trigger = TriggerEditorialOverride
		}
		if err := CheckTransition(from, to, trigger); err != nil {
			return err
		}

		open, err := u.tx.GetOpenRound(ctx, submissionID)
		if err != nil {
			return err
		}
		if open != nil {
			if err := e.closeRound(ctx, u, open, true, &to, trigger, note); err != nil {
				return err
			}
		} else if err := e.apply(ctx, u, to, trigger, nil, note); err != nil {
			return err
		}
		result = *u.submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Resubmit moves a submission awaiting revisions back under review
func (e *DecisionEngine) Resubmit(ctx context.Context, actor models.Actor, submissionID uint, note string) (*models.Submission, error) {
	var result models.Submission
	err := e.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		if err := e.policy.Authorize(OpSubmissionResubmit, actor, Relation{Owner: u.submission.AuthorID == actor.ID}); err != nil {
			return err
		}
		if err := e.apply(ctx, u, models.StatusUnderReview, TriggerResubmission, nil, note); err != nil {
			return err
		}
		result = *u.submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Transitions exposes the state machine
func (e *DecisionEngine) Transitions() []Transition {
	return Transitions()
}
