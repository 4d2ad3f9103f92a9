package service

import (
	"context"

	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
)

// CloseOptions controls how a round is closed
type CloseOptions struct {
	// Forced closes the round even when recommendations are outstanding
	Forced bool
	// Decision overrides the aggregated proposal
	Decision *models.SubmissionStatus
	Note     string
}

// RoundService tracks review rounds and their outcomes
type RoundService struct {
	engine *DecisionEngine
	store  repository.Store
	policy *Policy
}

// NewRoundService creates a new round service
func NewRoundService(engine *DecisionEngine, store repository.Store, policy *Policy) *RoundService {
	return &RoundService{engine: engine, store: store, policy: policy}
}

// Open starts the next review round of a submission. A submission that is
// submitted or awaiting revisions moves to under_review.
func (s *RoundService) Open(ctx context.Context, actor models.Actor, submissionID uint) (*models.ReviewRound, error) {
	if err := s.policy.Authorize(OpRoundOpen, actor, Relation{}); err != nil {
		return nil, err
	}

	var result models.ReviewRound
	err := s.engine.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		status := u.submission.Status
		if status.Terminal() {
			return terminalState(status, models.StatusUnderReview)
		}
		advance := status == models.StatusSubmitted || status == models.StatusRevisionsRequired
		if !advance && status != models.StatusUnderReview {
			return illegalTransition(status, models.StatusUnderReview)
		}

		open, err := u.tx.GetOpenRound(ctx, submissionID)
		if err != nil {
			return err
		}
		if open != nil {
			return conflict(CodeRoundAlreadyOpen, "round %d is already open for submission %d", open.Sequence, submissionID)
		}

		rounds, err := u.tx.ListRounds(ctx, submissionID)
		if err != nil {
			return err
		}

		round := &models.ReviewRound{
			SubmissionID: submissionID,
			Sequence:     len(rounds) + 1,
			OpenedAt:     u.now,
			OpenedBy:     actor.ID,
		}
		if err := u.tx.CreateRound(ctx, round); err != nil {
			if isUniqueViolation(err) {
				return conflict(CodeRoundAlreadyOpen, "a round is already open for submission %d", submissionID)
			}
			return err
		}

		roundID := round.ID
		if err := u.record(ctx, models.LifecycleEvent{Kind: models.EventRoundOpened, RoundID: &roundID}); err != nil {
			return err
		}
		if advance {
			if err := s.engine.apply(ctx, u, models.StatusUnderReview, TriggerRoundOpened, &roundID, ""); err != nil {
				return err
			}
		}
		result = *round
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Close ends an open round. Without Forced every assignment must carry a
// recommendation and the aggregated proposal is applied in the same
// transaction. A forced close without a Decision leaves the status alone.
func (s *RoundService) Close(ctx context.Context, actor models.Actor, roundID uint, opts CloseOptions) (*models.ReviewRound, error) {
	if err := s.policy.Authorize(OpRoundClose, actor, Relation{}); err != nil {
		return nil, err
	}
	if opts.Decision != nil && !opts.Decision.Valid() {
		return nil, validationError("unknown status %q", *opts.Decision)
	}

	submissionID, err := s.submissionOf(ctx, roundID)
	if err != nil {
		return nil, err
	}

	var result models.ReviewRound
	err = s.engine.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		round, err := u.tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if round == nil {
			return notFound("round", roundID)
		}
		if err := s.closeLocked(ctx, u, round, opts); err != nil {
			return err
		}
		result = *round
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// closeLocked closes a round inside an existing unit of work
func (s *RoundService) closeLocked(ctx context.Context, u *unitOfWork, round *models.ReviewRound, opts CloseOptions) error {
	if !round.IsOpen() {
		return conflict(CodeRoundClosed, "round %d is already closed", round.ID)
	}

	assignments, err := u.tx.ListAssignments(ctx, round.ID)
	if err != nil {
		return err
	}
	outcome := AggregateOutcome(round.ID, assignments)
	if !opts.Forced && outcome.Total == 0 {
		return conflict(CodeIncompleteRound, "round %d has no assignments; close it with forced", round.ID)
	}
	if !opts.Forced && !outcome.Complete {
		return conflict(CodeIncompleteRound, "round %d has %d of %d recommendations", round.ID, outcome.Responded, outcome.Total)
	}

	var target *models.SubmissionStatus
	trigger := TriggerRoundClosed
	switch {
	case opts.Decision != nil:
		target = opts.Decision
		trigger = TriggerEditorialDecision
	case !opts.Forced:
		target = outcome.Proposal
	}

	if target != nil {
		if err := CheckTransition(u.submission.Status, *target, trigger); err != nil {
			return err
		}
	}

	if target == nil && outcome.Proposal != nil {
		// forced close still remembers what the reviewers proposed
		proposal := *outcome.Proposal
		round.Outcome = &proposal
	}
	return s.engine.closeRound(ctx, u, round, opts.Forced, target, trigger, opts.Note)
}

// Outcome aggregates the recommendations recorded in a round
func (s *RoundService) Outcome(ctx context.Context, actor models.Actor, roundID uint) (*models.RoundOutcome, error) {
	if err := s.policy.Authorize(OpRoundOutcome, actor, Relation{}); err != nil {
		return nil, err
	}
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, notFound("round", roundID)
	}
	assignments, err := s.store.ListAssignments(ctx, roundID)
	if err != nil {
		return nil, err
	}
	outcome := AggregateOutcome(roundID, assignments)
	return &outcome, nil
}

// ListBySubmission returns the rounds of a submission in sequence order
func (s *RoundService) ListBySubmission(ctx context.Context, actor models.Actor, submissionID uint) ([]models.ReviewRound, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, notFound("submission", submissionID)
	}
	rel, err := relationTo(ctx, s.store, actor, sub)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(OpRoundView, actor, rel); err != nil {
		return nil, err
	}
	return s.store.ListRounds(ctx, submissionID)
}

func (s *RoundService) submissionOf(ctx context.Context, roundID uint) (uint, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	if round == nil {
		return 0, notFound("round", roundID)
	}
	return round.SubmissionID, nil
}

// AggregateOutcome applies the severity-first policy to a round's
// recommendations: any reject rejects, then any major revision, then any
// minor revision, and only unanimous acceptance accepts. The result does
// not depend on the order of assignments.
func AggregateOutcome(roundID uint, assignments []models.ReviewerAssignment) models.RoundOutcome {
	outcome := models.RoundOutcome{
		RoundID: roundID,
		Counts:  make(map[models.Recommendation]int, len(models.AllRecommendations)),
		Total:   len(assignments),
	}
	for _, rec := range models.AllRecommendations {
		outcome.Counts[rec] = 0
	}
	for _, a := range assignments {
		if a.Recommendation == nil {
			continue
		}
		outcome.Counts[*a.Recommendation]++
		outcome.Responded++
	}
	outcome.Complete = outcome.Total > 0 && outcome.Responded == outcome.Total
	if outcome.Responded == 0 {
		return outcome
	}

	status := func(s models.SubmissionStatus) *models.SubmissionStatus { return &s }
	kind := func(k models.RevisionKind) *models.RevisionKind { return &k }

	switch {
	case outcome.Counts[models.RecommendReject] > 0:
		outcome.Proposal = status(models.StatusRejected)
	case outcome.Counts[models.RecommendMajorRevisions] > 0:
		outcome.Proposal = status(models.StatusRevisionsRequired)
		outcome.RevisionKind = kind(models.RevisionMajor)
	case outcome.Counts[models.RecommendMinorRevisions] > 0:
		outcome.Proposal = status(models.StatusRevisionsRequired)
		outcome.RevisionKind = kind(models.RevisionMinor)
	default:
		outcome.Proposal = status(models.StatusAccepted)
	}
	return outcome
}
