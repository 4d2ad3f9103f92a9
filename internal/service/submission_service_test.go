package service_test

import (
	"errors"
	"testing"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

func TestCreateSubmission(t *testing.T) {
	h := newHarness(t)
	issue := "  2026-04 "

	sub, err := h.svc.Submissions.Create(h.ctx, author, service.CreateSubmissionInput{
		Title:         "  Lattice paths  ",
		Abstract:      "Counting lattice paths",
		Keywords:      []string{"combinatorics", " Combinatorics", "paths", ""},
		JournalID:     "jcs",
		IssueID:       &issue,
		ManuscriptRef: "s3://manuscripts/lattice.pdf",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if sub.ID == 0 || sub.AuthorID != author.ID {
		t.Errorf("submission = %+v", sub)
	}
	if sub.Title != "Lattice paths" {
		t.Errorf("Title = %q, want trimmed", sub.Title)
	}
	if sub.IssueID == nil || *sub.IssueID != "2026-04" {
		t.Errorf("IssueID = %v", sub.IssueID)
	}
	if len(sub.Keywords) != 2 {
		t.Errorf("Keywords = %v, want a deduplicated set of two", sub.Keywords)
	}
	if sub.SubmittedAt.IsZero() || sub.SubmittedAt.Location().String() != "UTC" {
		t.Errorf("SubmittedAt = %v, want a UTC timestamp", sub.SubmittedAt)
	}

	events, _ := h.store.ListEvents(h.ctx, sub.ID)
	if len(events) != 1 || events[0].Kind != models.EventSubmissionCreated || events[0].ToState != models.StatusSubmitted {
		t.Errorf("creation events = %+v", events)
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	h := newHarness(t)

	valid := service.CreateSubmissionInput{
		Title:         "Title",
		Abstract:      "Abstract",
		JournalID:     "jcs",
		ManuscriptRef: "s3://manuscripts/x.pdf",
	}

	tests := []struct {
		name   string
		actor  models.Actor
		mutate func(in *service.CreateSubmissionInput)
		want   error
	}{
		{"missing title", author, func(in *service.CreateSubmissionInput) { in.Title = "" }, service.ErrValidation},
		{"missing manuscript", author, func(in *service.CreateSubmissionInput) { in.ManuscriptRef = "" }, service.ErrValidation},
		{"missing journal", author, func(in *service.CreateSubmissionInput) { in.JournalID = "" }, service.ErrValidation},
		{"editor cannot submit", editor, func(in *service.CreateSubmissionInput) {}, service.ErrForbidden},
		{"reviewer cannot submit", reviewerA, func(in *service.CreateSubmissionInput) {}, service.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			if _, err := h.svc.Submissions.Create(h.ctx, tt.actor, in); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}

	page, err := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 0 {
		t.Errorf("rejected creations stored %d submissions", page.Total)
	}
}

func TestGetSubmissionVisibility(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Visibility")
	round := h.openRound(t, sub.ID)
	h.assign(t, round.ID, reviewerA)

	tests := []struct {
		name  string
		actor models.Actor
		want  error
	}{
		{"author", author, nil},
		{"editor", editor, nil},
		{"admin", admin, nil},
		{"assigned reviewer", reviewerA, nil},
		{"unassigned reviewer", reviewerB, service.ErrForbidden},
		{"other author", otherAuthor, service.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Submissions.Get(h.ctx, tt.actor, sub.ID)
			if tt.want == nil && err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Get() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := h.svc.Submissions.Get(h.ctx, editor, 999); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Get() missing submission error = %v, want ErrNotFound", err)
	}
}

func TestListSubmissions(t *testing.T) {
	h := newHarness(t)

	var ids []uint
	for _, title := range []string{"Graph minors", "Matroid theory", "Graph drawing", "Ramsey numbers", "Graph spectra"} {
		ids = append(ids, h.submit(t, author, title).ID)
	}
	foreign := h.submit(t, otherAuthor, "Graph homomorphisms")

	round := h.openRound(t, foreign.ID)
	h.assign(t, round.ID, reviewerA)

	t.Run("newest first with pagination", func(t *testing.T) {
		first, err := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{}, 1, 4)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if first.Total != 6 || len(first.Items) != 4 || first.Items[0].ID != foreign.ID {
			t.Fatalf("first page = total %d, %d items", first.Total, len(first.Items))
		}
		second, _ := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{}, 2, 4)
		if len(second.Items) != 2 || second.Items[1].ID != ids[0] {
			t.Fatalf("second page = %+v", second.Items)
		}
	})

	t.Run("authors see their own", func(t *testing.T) {
		page, _ := h.svc.Submissions.List(h.ctx, otherAuthor, models.SubmissionFilter{}, 1, 0)
		if page.Total != 1 || page.Items[0].ID != foreign.ID {
			t.Fatalf("other author page = %+v", page)
		}
		if page.PageSize != 20 {
			t.Errorf("default page size = %d, want 20", page.PageSize)
		}
	})

	t.Run("reviewers see assigned", func(t *testing.T) {
		page, _ := h.svc.Submissions.List(h.ctx, reviewerA, models.SubmissionFilter{}, 1, 10)
		if page.Total != 1 || page.Items[0].ID != foreign.ID {
			t.Fatalf("reviewer page = %+v", page)
		}
		empty, _ := h.svc.Submissions.List(h.ctx, reviewerB, models.SubmissionFilter{}, 1, 10)
		if empty.Total != 0 {
			t.Fatalf("unassigned reviewer sees %d submissions", empty.Total)
		}
	})

	t.Run("filters", func(t *testing.T) {
		page, _ := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{Search: "graph"}, 1, 10)
		if page.Total != 4 {
			t.Errorf("search matched %d, want 4", page.Total)
		}
		status := models.StatusUnderReview
		page, _ = h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{Status: &status}, 1, 10)
		if page.Total != 1 {
			t.Errorf("status filter matched %d, want 1", page.Total)
		}
		bad := models.SubmissionStatus("archived")
		if _, err := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{Status: &bad}, 1, 10); !errors.Is(err, service.ErrValidation) {
			t.Errorf("unknown status filter error = %v, want ErrValidation", err)
		}
	})

	t.Run("page size is capped", func(t *testing.T) {
		page, _ := h.svc.Submissions.List(h.ctx, editor, models.SubmissionFilter{}, 0, 5000)
		if page.PageSize != 100 || page.Page != 1 {
			t.Errorf("page = %d, size = %d", page.Page, page.PageSize)
		}
	})
}

func TestDraftWorkflow(t *testing.T) {
	h := newHarness(t, func(o *service.Options) { o.Workflow.EnableDrafts = true })
	draft := h.submit(t, author, "Work in progress")

	if draft.Status != models.StatusPending {
		t.Fatalf("draft status = %s, want pending", draft.Status)
	}
	if _, err := h.svc.Rounds.Open(h.ctx, editor, draft.ID); !errors.Is(err, service.ErrIllegalTransition) {
		t.Errorf("Open() on draft error = %v, want ErrIllegalTransition", err)
	}
	if _, err := h.svc.Submissions.Finalize(h.ctx, otherAuthor, draft.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Finalize() by other author error = %v, want ErrForbidden", err)
	}

	finalized, err := h.svc.Submissions.Finalize(h.ctx, author, draft.ID)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if finalized.Status != models.StatusSubmitted || !finalized.SubmittedAt.After(draft.SubmittedAt) {
		t.Errorf("finalized = %+v", finalized)
	}
	if _, err := h.svc.Submissions.Finalize(h.ctx, author, draft.ID); !errors.Is(err, service.ErrIllegalTransition) {
		t.Errorf("second Finalize() error = %v, want ErrIllegalTransition", err)
	}

	assertTransitions(t, h, draft.ID, []transitionStep{
		{"", models.StatusPending, service.TriggerCreated},
		{models.StatusPending, models.StatusSubmitted, service.TriggerFinalize},
	})
}

func TestUpdateManuscript(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Versioned manuscript")

	updated, err := h.svc.Submissions.UpdateManuscript(h.ctx, author, sub.ID, "s3://manuscripts/v2.pdf")
	if err != nil {
		t.Fatalf("UpdateManuscript() error = %v", err)
	}
	if updated.ManuscriptRef != "s3://manuscripts/v2.pdf" {
		t.Errorf("ManuscriptRef = %q", updated.ManuscriptRef)
	}
	if _, err := h.svc.Submissions.UpdateManuscript(h.ctx, otherAuthor, sub.ID, "s3://x.pdf"); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("UpdateManuscript() by other author error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Submissions.UpdateManuscript(h.ctx, author, sub.ID, "   "); !errors.Is(err, service.ErrValidation) {
		t.Errorf("UpdateManuscript() blank ref error = %v, want ErrValidation", err)
	}

	h.openRound(t, sub.ID)
	if _, err := h.svc.Submissions.UpdateManuscript(h.ctx, author, sub.ID, "s3://manuscripts/v3.pdf"); !errors.Is(err, service.ErrValidation) {
		t.Errorf("UpdateManuscript() during review error = %v, want ErrValidation", err)
	}

	stored, _ := h.store.GetSubmission(h.ctx, sub.ID)
	if stored.ManuscriptRef != "s3://manuscripts/v2.pdf" {
		t.Errorf("stored ManuscriptRef = %q", stored.ManuscriptRef)
	}
}
