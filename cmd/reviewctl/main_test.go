package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"manuscript-review/internal/auth"
	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
	"manuscript-review/internal/testutil"
)

func TestRunUsageAndUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "verify-chain") {
		t.Errorf("usage = %q", out.String())
	}

	err := run(context.Background(), []string{"frobnicate"}, &out)
	var exit *exitError
	if !errors.As(err, &exit) || exit.ExitCode() != 2 {
		t.Errorf("unknown command error = %v, want exit code 2", err)
	}
}

func TestKeygenProducesUsableSecret(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"keygen"}, &out); err != nil {
		t.Fatalf("keygen error = %v", err)
	}

	line, _, _ := strings.Cut(out.String(), "\n")
	secret, ok := strings.CutPrefix(line, "JWT_SECRET=")
	if !ok {
		t.Fatalf("first line = %q, want JWT_SECRET=...", line)
	}

	tokens, err := auth.NewService(&config.JWTConfig{Secret: secret})
	if err != nil {
		t.Fatalf("generated secret rejected: %v", err)
	}
	actor := models.Actor{ID: 5, Role: models.RoleEditor}
	token, err := tokens.GenerateToken(actor)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if got, err := tokens.ResolveActor(token); err != nil || got != actor {
		t.Errorf("ResolveActor() = %+v, %v", got, err)
	}
}

func TestTokenRequiresActor(t *testing.T) {
	err := run(context.Background(), []string{"token", "--role", "wizard", "--id", "3"}, &bytes.Buffer{})
	var exit *exitError
	if !errors.As(err, &exit) || exit.ExitCode() != 2 {
		t.Errorf("error = %v, want exit code 2", err)
	}
}

func TestVerifyChains(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := service.NewServices(store, service.DefaultPolicy(), service.Options{
		Workflow: config.WorkflowConfig{DefaultPageSize: 20, MaxPageSize: 100},
	})
	fx := testutil.SetupFixtures(t, svc)
	ctx := context.Background()

	var out bytes.Buffer
	if err := verifyChains(ctx, store, 0, &out); err != nil {
		t.Fatalf("verifyChains() error = %v", err)
	}
	if !strings.Contains(out.String(), "intact") {
		t.Errorf("output = %q", out.String())
	}

	events, _ := store.ListEvents(ctx, fx.Submission.ID)
	last := events[len(events)-1]
	err := store.WithinSubmission(ctx, fx.Submission.ID, func(tx repository.Tx) error {
		return tx.CreateEvent(ctx, &models.LifecycleEvent{
			SubmissionID: fx.Submission.ID, ActorID: 99, ActorRole: models.RoleEditor,
			Kind: models.EventStatusChanged, FromState: models.StatusUnderReview, ToState: models.StatusAccepted,
			CreatedAt: last.CreatedAt, PrevHash: last.Hash, Hash: "forged",
		})
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	out.Reset()
	err = verifyChains(ctx, store, fx.Submission.ID, &out)
	var exit *exitError
	if !errors.As(err, &exit) || exit.ExitCode() != 3 {
		t.Fatalf("verifyChains() error = %v, want exit code 3", err)
	}
	if !strings.Contains(out.String(), "submission") {
		t.Errorf("output = %q", out.String())
	}

	if err := verifyChains(ctx, store, 424242, &out); err == nil {
		t.Error("verifyChains() accepted a submission without events")
	}
}
