package service_test

import (
	"errors"
	"testing"

	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
)

func TestEventChain(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Hash chains")
	round := h.openRound(t, sub.ID)
	a := h.assign(t, round.ID, reviewerA)
	h.respond(t, a, reviewerA, models.RecommendAccept)
	if _, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, err := h.svc.Audit.Events(h.ctx, author, sub.ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) == 0 || events[0].PrevHash != service.GenesisHash {
		t.Fatalf("first event does not start at the genesis hash")
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash != events[i-1].Hash {
			t.Errorf("event %d is not linked to its predecessor", events[i].ID)
		}
		if events[i].ID <= events[i-1].ID {
			t.Errorf("events out of order at %d", i)
		}
	}

	result, err := h.svc.Audit.VerifyChain(h.ctx, editor, sub.ID)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if !result.Valid || result.Events != len(events) {
		t.Fatalf("verification = %+v", result)
	}

	// a status change written straight to the store, outside the chain
	last := events[len(events)-1]
	err = h.store.WithinSubmission(h.ctx, sub.ID, func(tx repository.Tx) error {
		return tx.CreateEvent(h.ctx, &models.LifecycleEvent{
			SubmissionID: sub.ID, ActorID: 99, ActorRole: models.RoleEditor,
			Kind: models.EventStatusChanged, FromState: models.StatusAccepted, ToState: models.StatusUnderReview,
			CreatedAt: last.CreatedAt, PrevHash: last.Hash, Hash: "forged",
		})
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	tampered, err := h.svc.Audit.VerifyChain(h.ctx, admin, sub.ID)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if tampered.Valid || len(tampered.Problems) == 0 {
		t.Errorf("tampered chain reported valid: %+v", tampered)
	}
}

func TestVerifyEventsDetectsReordering(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Reordered log")
	h.openRound(t, sub.ID)

	events, _ := h.store.ListEvents(h.ctx, sub.ID)
	if len(events) < 3 {
		t.Fatalf("expected at least three events, got %d", len(events))
	}
	events[1], events[2] = events[2], events[1]

	if got := service.VerifyEvents(sub.ID, events); got.Valid {
		t.Error("swapped events verified as valid")
	}
	if got := service.VerifyEvents(sub.ID, nil); !got.Valid || got.Events != 0 {
		t.Errorf("empty log = %+v", got)
	}
}

func TestAuditAccess(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Who may audit")

	if _, err := h.svc.Audit.Events(h.ctx, otherAuthor, sub.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Events() by other author error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Audit.VerifyChain(h.ctx, author, sub.ID); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("VerifyChain() by author error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Audit.Events(h.ctx, admin, 777); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Events() unknown submission error = %v, want ErrNotFound", err)
	}
}
