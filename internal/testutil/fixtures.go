package testutil

import (
	"context"
	"testing"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

// Actors used across fixture data
var (
	Editor    = models.Actor{ID: 1, Role: models.RoleEditor}
	Admin     = models.Actor{ID: 2, Role: models.RoleAdmin}
	Author    = models.Actor{ID: 10, Role: models.RoleAuthor}
	Outsider  = models.Actor{ID: 11, Role: models.RoleAuthor}
	ReviewerA = models.Actor{ID: 20, Role: models.RoleReviewer}
	ReviewerB = models.Actor{ID: 21, Role: models.RoleReviewer}
)

// Fixtures is a submission under review with two assigned reviewers
type Fixtures struct {
	Submission  *models.Submission
	Round       *models.ReviewRound
	AssignmentA *models.ReviewerAssignment
	AssignmentB *models.ReviewerAssignment
}

// SetupFixtures drives svc through submission, round opening and assignment
func SetupFixtures(t *testing.T, svc *service.Services) *Fixtures {
	t.Helper()
	ctx := context.Background()

	sub, err := svc.Submissions.Create(ctx, Author, service.CreateSubmissionInput{
		Title:         "Fixture manuscript",
		Abstract:      "A manuscript used by integration tests",
		Keywords:      []string{"fixtures"},
		JournalID:     "jtest",
		ManuscriptRef: "s3://manuscripts/fixture.pdf",
	})
	if err != nil {
		t.Fatalf("Failed to create submission: %v", err)
	}

	round, err := svc.Rounds.Open(ctx, Editor, sub.ID)
	if err != nil {
		t.Fatalf("Failed to open round: %v", err)
	}

	a, err := svc.Assignments.Assign(ctx, Editor, round.ID, ReviewerA.ID)
	if err != nil {
		t.Fatalf("Failed to assign reviewer A: %v", err)
	}
	b, err := svc.Assignments.Assign(ctx, Editor, round.ID, ReviewerB.ID)
	if err != nil {
		t.Fatalf("Failed to assign reviewer B: %v", err)
	}

	sub.Status = models.StatusUnderReview
	return &Fixtures{Submission: sub, Round: round, AssignmentA: a, AssignmentB: b}
}
