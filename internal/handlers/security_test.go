package handlers_test

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"manuscript-review/internal/config"
	"manuscript-review/internal/handlers"
	"manuscript-review/internal/middleware"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
	"manuscript-review/internal/testutil"
)

type securityEnv struct {
	mux      http.Handler
	authH    *testutil.AuthHelper
	svc      *service.Services
	fixtures *testutil.Fixtures
}

func setupSecurityEnv(t *testing.T) *securityEnv {
	t.Helper()
	containers := testutil.SetupPostgres(t)

	store := repository.NewPostgresStore(containers.DB)
	svc := service.NewServices(store, service.DefaultPolicy(), service.Options{
		Workflow: config.WorkflowConfig{DefaultPageSize: 20, MaxPageSize: 100},
	})
	authH := testutil.NewAuthHelper(t)

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, svc,
		handlers.NewHealthHandler(store, "test"),
		handlers.NewConfigHandler(&config.Config{}),
		middleware.NewAuthMiddleware(authH.Service),
	)

	return &securityEnv{mux: mux, authH: authH, svc: svc, fixtures: testutil.SetupFixtures(t, svc)}
}

func (e *securityEnv) get(t *testing.T, actor models.Actor, path string) *testutil.TestResponse {
	t.Helper()
	req := e.authH.CreateAuthenticatedRequest(t, http.MethodGet, path, actor)
	resp := testutil.NewTestResponse()
	e.mux.ServeHTTP(resp, req)
	return resp
}

func id(v uint) string { return strconv.FormatUint(uint64(v), 10) }

// TestReviewerIsolation verifies that reviewers can only see their own assignment
func TestReviewerIsolation(t *testing.T) {
	env := setupSecurityEnv(t)
	fx := env.fixtures

	resp := env.get(t, testutil.ReviewerA, "/api/v1/rounds/"+id(fx.Round.ID)+"/assignments")
	resp.AssertStatusOK(t)

	var assignments []models.ReviewerAssignment
	if err := json.Unmarshal(resp.Body.Bytes(), &assignments); err != nil {
		t.Fatalf("Failed to decode assignments: %v", err)
	}
	if len(assignments) != 1 || assignments[0].ReviewerID != testutil.ReviewerA.ID {
		t.Errorf("Reviewer A sees %+v, want only their own assignment", assignments)
	}

	resp = env.get(t, testutil.Editor, "/api/v1/rounds/"+id(fx.Round.ID)+"/assignments")
	resp.AssertStatusOK(t)
	if err := json.Unmarshal(resp.Body.Bytes(), &assignments); err != nil {
		t.Fatalf("Failed to decode assignments: %v", err)
	}
	if len(assignments) != 2 {
		t.Errorf("Editor sees %d assignments, want 2", len(assignments))
	}
}

// TestAuthorCannotSeeOutcomeOrOtherSubmissions verifies the author boundaries
func TestAuthorCannotSeeOutcomeOrOtherSubmissions(t *testing.T) {
	env := setupSecurityEnv(t)
	fx := env.fixtures

	env.get(t, testutil.Author, "/api/v1/submissions/"+id(fx.Submission.ID)).AssertStatusOK(t)
	env.get(t, testutil.Author, "/api/v1/rounds/"+id(fx.Round.ID)+"/outcome").AssertStatusForbidden(t)
	env.get(t, testutil.Outsider, "/api/v1/submissions/"+id(fx.Submission.ID)).AssertStatusForbidden(t)
	env.get(t, testutil.Outsider, "/api/v1/submissions/999999").AssertStatusNotFound(t)
}

// TestTerminalSubmissionIsImmutable verifies that a decided submission stays decided
func TestTerminalSubmissionIsImmutable(t *testing.T) {
	env := setupSecurityEnv(t)
	fx := env.fixtures
	ctx := t.Context()

	if _, err := env.svc.Engine.Decide(ctx, testutil.Editor, fx.Submission.ID, models.StatusRejected, "out of scope"); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if _, err := env.svc.Rounds.Open(ctx, testutil.Editor, fx.Submission.ID); err == nil {
		t.Error("Opened a round on a rejected submission")
	}
	if _, err := env.svc.Assignments.RecordResponse(ctx, testutil.ReviewerB, fx.AssignmentB.ID, models.RecommendAccept, ""); err == nil {
		t.Error("Recorded a recommendation after the round was force-closed")
	}

	resp := env.get(t, testutil.Editor, "/api/v1/submissions/"+id(fx.Submission.ID)+"/events/verify")
	resp.AssertStatusOK(t)
	var result models.ChainVerification
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode verification: %v", err)
	}
	if !result.Valid {
		t.Errorf("Event chain invalid: %v", result.Problems)
	}
}
