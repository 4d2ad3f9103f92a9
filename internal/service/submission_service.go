package service

import (
	"context"
	"errors"
	"strings"

	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/pkg/validator"
)

// CreateSubmissionInput is the payload accepted by SubmissionService.Create
type CreateSubmissionInput struct {
	Title         string   `json:"title" validate:"required,max=500"`
	Abstract      string   `json:"abstract" validate:"required,max=10000"`
	Keywords      []string `json:"keywords" validate:"max=50"`
	JournalID     string   `json:"journal_id" validate:"required,max=255"`
	IssueID       *string  `json:"issue_id,omitempty" validate:"max=255"`
	ManuscriptRef string   `json:"manuscript_ref" validate:"required"`
}

// SubmissionService handles submission creation, retrieval and listing
type SubmissionService struct {
	engine   *DecisionEngine
	store    repository.Store
	policy   *Policy
	workflow config.WorkflowConfig
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(engine *DecisionEngine, store repository.Store, policy *Policy, workflow config.WorkflowConfig) *SubmissionService {
	return &SubmissionService{
		engine:   engine,
		store:    store,
		policy:   policy,
		workflow: workflow,
	}
}

// Create stores a new submission authored by the actor
func (s *SubmissionService) Create(ctx context.Context, actor models.Actor, in CreateSubmissionInput) (*models.Submission, error) {
	if err := s.policy.Authorize(OpSubmissionCreate, actor, Relation{}); err != nil {
		return nil, err
	}
	if err := validator.ValidateStruct(&in); err != nil {
		return nil, validationError("%s", err.Error())
	}

	initial := models.StatusSubmitted
	if s.workflow.EnableDrafts {
		initial = models.StatusPending
	}

	var issueID *string
	if in.IssueID != nil {
		if trimmed := validator.SanitizeString(*in.IssueID); trimmed != "" {
			issueID = &trimmed
		}
	}

	var result models.Submission
	err := s.engine.runNew(ctx, actor, func(u *unitOfWork) error {
		*u.submission = models.Submission{
			Title:         validator.SanitizeString(in.Title),
			Abstract:      validator.SanitizeString(in.Abstract),
			Keywords:      validator.NormalizeSet(in.Keywords),
			AuthorID:      actor.ID,
			JournalID:     validator.SanitizeString(in.JournalID),
			IssueID:       issueID,
			ManuscriptRef: validator.SanitizeString(in.ManuscriptRef),
			Status:        initial,
			SubmittedAt:   u.now,
			CreatedAt:     u.now,
			UpdatedAt:     u.now,
		}
		if err := u.tx.CreateSubmission(ctx, u.submission); err != nil {
			return err
		}
		if err := u.record(ctx, models.LifecycleEvent{
			Kind:    models.EventSubmissionCreated,
			ToState: initial,
			Trigger: string(TriggerCreated),
		}); err != nil {
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

// relationTo derives how the actor relates to a submission
func relationTo(ctx context.Context, r repository.Reader, actor models.Actor, sub *models.Submission) (Relation, error) {
	rel := Relation{Owner: sub.AuthorID == actor.ID}
	if actor.Role == models.RoleReviewer {
		assigned, err := r.HasAssignment(ctx, sub.ID, actor.ID)
		if err != nil {
			return rel, err
		}
		rel.Assignee = assigned
	}
	return rel, nil
}

// Get returns a submission the actor is allowed to see
func (s *SubmissionService) Get(ctx context.Context, actor models.Actor, id uint) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, notFound("submission", id)
	}
	rel, err := relationTo(ctx, s.store, actor, sub)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(OpSubmissionView, actor, rel); err != nil {
		return nil, err
	}
	return sub, nil
}

// List returns one page of submissions visible to the actor, newest first.
// Authors are restricted to their own submissions and reviewers to the
// submissions they hold an assignment on.
func (s *SubmissionService) List(ctx context.Context, actor models.Actor, filter models.SubmissionFilter, page, pageSize int) (*models.SubmissionPage, error) {
	if err := s.policy.Authorize(OpSubmissionList, actor, Relation{}); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, validationError("unknown status %q", *filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)

	switch actor.Role {
	case models.RoleAuthor:
		id := actor.ID
		filter.AuthorID = &id
	case models.RoleReviewer:
		id := actor.ID
		filter.ReviewerID = &id
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.workflow.DefaultPageSize
	}
	if pageSize > s.workflow.MaxPageSize {
		pageSize = s.workflow.MaxPageSize
	}

	total, err := s.store.CountSubmissions(ctx, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListSubmissions(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	return &models.SubmissionPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// Finalize moves the actor's draft into the submitted state
func (s *SubmissionService) Finalize(ctx context.Context, actor models.Actor, id uint) (*models.Submission, error) {
	var result models.Submission
	err := s.engine.run(ctx, actor, id, func(u *unitOfWork) error {
		if err := s.policy.Authorize(OpSubmissionFinalize, actor, Relation{Owner: u.submission.AuthorID == actor.ID}); err != nil {
			return err
		}
		if err := s.engine.apply(ctx, u, models.StatusSubmitted, TriggerFinalize, nil, ""); err != nil {
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

// UpdateManuscript replaces the manuscript reference until review begins
func (s *SubmissionService) UpdateManuscript(ctx context.Context, actor models.Actor, id uint, ref string) (*models.Submission, error) {
	ref = validator.SanitizeString(ref)
	if ref == "" {
		return nil, validationError("manuscript_ref is required")
	}

	var result models.Submission
	err := s.engine.run(ctx, actor, id, func(u *unitOfWork) error {
		if err := s.policy.Authorize(OpSubmissionUpdateManuscript, actor, Relation{Owner: u.submission.AuthorID == actor.ID}); err != nil {
			return err
		}
		if u.submission.Status.ReviewStarted() {
			return validationError("manuscript reference is immutable once review has begun (status %s)", u.submission.Status)
		}
		if u.submission.ManuscriptRef != ref {
			u.submission.ManuscriptRef = ref
			u.submission.UpdatedAt = u.now
			if err := u.tx.UpdateSubmission(ctx, u.submission); err != nil {
				return err
			}
			if err := u.record(ctx, models.LifecycleEvent{Kind: models.EventManuscriptUpdated, Detail: ref}); err != nil {
				return err
			}
		}
		result = *u.submission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// isUniqueViolation reports whether a store error came from a uniqueness guard
func isUniqueViolation(err error) bool {
	return errors.Is(err, repository.ErrUniqueViolation)
}
