package repository_test

import (
	"context"
	"testing"

	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
	"manuscript-review/internal/testutil"
)

func TestRewrittenEventBreaksChain(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := service.NewServices(store, service.DefaultPolicy(), service.Options{
		Workflow: config.WorkflowConfig{DefaultPageSize: 20, MaxPageSize: 100},
	})
	fx := testutil.SetupFixtures(t, svc)
	ctx := context.Background()

	events, err := store.ListEvents(ctx, fx.Submission.ID)
	if err != nil || len(events) < 2 {
		t.Fatalf("ListEvents() = %d events, %v", len(events), err)
	}
	if got := service.VerifyEvents(fx.Submission.ID, events); !got.Valid {
		t.Fatalf("intact chain reported broken: %+v", got)
	}

	if !store.TamperEvent(fx.Submission.ID, events[1].ID, func(e *models.LifecycleEvent) { e.Detail = "rewritten" }) {
		t.Fatal("TamperEvent() found no event")
	}
	events, _ = store.ListEvents(ctx, fx.Submission.ID)
	if got := service.VerifyEvents(fx.Submission.ID, events); got.Valid || len(got.Problems) == 0 {
		t.Errorf("rewritten chain reported valid: %+v", got)
	}
}
