package service

import (
	"context"
	"fmt"

	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/pkg/validator"
)

// AssignmentService is the reviewer assignment ledger
type AssignmentService struct {
	engine    *DecisionEngine
	store     repository.Store
	policy    *Policy
	rounds    *RoundService
	sealer    CommentSealer
	autoClose bool
}

// NewAssignmentService creates a new assignment service. When autoClose is
// set, the response completing a round also closes it.
func NewAssignmentService(engine *DecisionEngine, store repository.Store, policy *Policy, rounds *RoundService, sealer CommentSealer, autoClose bool) *AssignmentService {
	if sealer == nil {
		sealer = PlainSealer{}
	}
	return &AssignmentService{
		engine:    engine,
		store:     store,
		policy:    policy,
		rounds:    rounds,
		sealer:    sealer,
		autoClose: autoClose,
	}
}

// Assign adds a reviewer to an open round
func (s *AssignmentService) Assign(ctx context.Context, actor models.Actor, roundID, reviewerID uint) (*models.ReviewerAssignment, error) {
	if err := s.policy.Authorize(OpAssignmentAssign, actor, Relation{}); err != nil {
		return nil, err
	}
	if reviewerID == 0 {
		return nil, validationError("reviewer_id is required")
	}
	submissionID, err := s.rounds.submissionOf(ctx, roundID)
	if err != nil {
		return nil, err
	}

	var result models.ReviewerAssignment
	err = s.engine.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		if u.submission.Status.Terminal() {
			return terminalState(u.submission.Status, "")
		}
		round, err := u.tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		if round == nil {
			return notFound("round", roundID)
		}
		if !round.IsOpen() {
			return conflict(CodeRoundClosed, "round %d is closed", roundID)
		}
		if reviewerID == u.submission.AuthorID {
			return validationError("the author of submission %d cannot review it", submissionID)
		}

		existing, err := u.tx.FindAssignment(ctx, roundID, reviewerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict(CodeDuplicateAssignment, "reviewer %d is already assigned to round %d", reviewerID, roundID)
		}

		assignment := &models.ReviewerAssignment{
			RoundID:      roundID,
			SubmissionID: submissionID,
			ReviewerID:   reviewerID,
			AssignedBy:   actor.ID,
			AssignedAt:   u.now,
		}
		if err := u.tx.CreateAssignment(ctx, assignment); err != nil {
			if isUniqueViolation(err) {
				return conflict(CodeDuplicateAssignment, "reviewer %d is already assigned to round %d", reviewerID, roundID)
			}
			return err
		}

		assignmentID := assignment.ID
		if err := u.record(ctx, models.LifecycleEvent{
			Kind:         models.EventAssignmentCreated,
			RoundID:      &roundID,
			AssignmentID: &assignmentID,
			Detail:       fmt.Sprintf("reviewer %d", reviewerID),
		}); err != nil {
			return err
		}
		result = *assignment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordResponse stores the assigned reviewer's recommendation and comment.
// A recorded response is final.
func (s *AssignmentService) RecordResponse(ctx context.Context, actor models.Actor, assignmentID uint, recommendation models.Recommendation, comment string) (*models.ReviewerAssignment, error) {
	if !recommendation.Valid() {
		return nil, validationError("unknown recommendation %q", recommendation)
	}
	comment = validator.SanitizeString(comment)

	submissionID, err := s.submissionOf(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	var result models.ReviewerAssignment
	err = s.engine.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		assignment, err := u.tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return notFound("assignment", assignmentID)
		}
		if err := s.policy.Authorize(OpAssignmentRespond, actor, Relation{Assignee: assignment.ReviewerID == actor.ID}); err != nil {
			return err
		}
		if assignment.Completed() {
			return conflict(CodeAlreadySubmitted, "assignment %d already has a recommendation", assignmentID)
		}

		round, err := u.tx.GetRound(ctx, assignment.RoundID)
		if err != nil {
			return err
		}
		if round == nil {
			return notFound("round", assignment.RoundID)
		}
		if !round.IsOpen() {
			return conflict(CodeRoundClosed, "round %d is closed", round.ID)
		}

		if comment != "" {
			sealed, err := s.sealer.Seal(ctx, comment)
			if err != nil {
				return fmt.Errorf("failed to seal comment: %w", err)
			}
			commentedAt := u.now
			assignment.Comment = &sealed
			assignment.CommentedAt = &commentedAt
		}
		rec := recommendation
		assignment.Recommendation = &rec
		if err := u.tx.UpdateAssignment(ctx, assignment); err != nil {
			return err
		}

		roundID := round.ID
		if err := u.record(ctx, models.LifecycleEvent{
			Kind:         models.EventAssignmentResponded,
			RoundID:      &roundID,
			AssignmentID: &assignmentID,
			Detail:       string(recommendation),
		}); err != nil {
			return err
		}

		if s.autoClose {
			if err := s.closeIfComplete(ctx, u, round); err != nil {
				return err
			}
		}

		result = *assignment
		if comment != "" {
			result.Comment = &comment
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *AssignmentService) closeIfComplete(ctx context.Context, u *unitOfWork, round *models.ReviewRound) error {
	assignments, err := u.tx.ListAssignments(ctx, round.ID)
	if err != nil {
		return err
	}
	if !AggregateOutcome(round.ID, assignments).Complete {
		return nil
	}
	return s.rounds.closeLocked(ctx, u, round, CloseOptions{Note: "closed automatically after the last recommendation"})
}

// Remove withdraws an assignment that has no recommendation yet
func (s *AssignmentService) Remove(ctx context.Context, actor models.Actor, assignmentID uint) error {
	if err := s.policy.Authorize(OpAssignmentRemove, actor, Relation{}); err != nil {
		return err
	}
	submissionID, err := s.submissionOf(ctx, assignmentID)
	if err != nil {
		return err
	}

	return s.engine.run(ctx, actor, submissionID, func(u *unitOfWork) error {
		assignment, err := u.tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if assignment == nil {
			return notFound("assignment", assignmentID)
		}
		if assignment.Completed() {
			return conflict(CodeCannotRemoveCompleted, "assignment %d already has a recommendation", assignmentID)
		}
		round, err := u.tx.GetRound(ctx, assignment.RoundID)
		if err != nil {
			return err
		}
		if round != nil && !round.IsOpen() {
			return conflict(CodeRoundClosed, "round %d is closed", round.ID)
		}

		if err := u.tx.DeleteAssignment(ctx, assignmentID); err != nil {
			return err
		}
		roundID := assignment.RoundID
		return u.record(ctx, models.LifecycleEvent{
			Kind:         models.EventAssignmentRemoved,
			RoundID:      &roundID,
			AssignmentID: &assignmentID,
			Detail:       fmt.Sprintf("reviewer %d", assignment.ReviewerID),
		})
	})
}

// ListByRound returns a round's assignments in insertion order. Reviewers
// only see their own assignment.
func (s *AssignmentService) ListByRound(ctx context.Context, actor models.Actor, roundID uint) ([]models.ReviewerAssignment, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, notFound("round", roundID)
	}
	sub, err := s.store.GetSubmission(ctx, round.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, notFound("submission", round.SubmissionID)
	}
	rel, err := relationTo(ctx, s.store, actor, sub)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(OpAssignmentList, actor, rel); err != nil {
		return nil, err
	}

	assignments, err := s.store.ListAssignments(ctx, roundID)
	if err != nil {
		return nil, err
	}

	visible := make([]models.ReviewerAssignment, 0, len(assignments))
	for _, a := range assignments {
		if actor.Role == models.RoleReviewer && a.ReviewerID != actor.ID {
			continue
		}
		if a.Comment != nil {
			opened, err := s.sealer.Open(ctx, *a.Comment)
			if err != nil {
				return nil, fmt.Errorf("failed to open comment of assignment %d: %w", a.ID, err)
			}
			a.Comment = &opened
		}
		visible = append(visible, a)
	}
	return visible, nil
}

func (s *AssignmentService) submissionOf(ctx context.Context, assignmentID uint) (uint, error) {
	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	if assignment == nil {
		return 0, notFound("assignment", assignmentID)
	}
	return assignment.SubmissionID, nil
}
