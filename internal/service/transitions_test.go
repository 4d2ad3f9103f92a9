package service_test

import (
	"errors"
	"testing"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    models.SubmissionStatus
		to      models.SubmissionStatus
		trigger service.Trigger
		want    error
	}{
		{"finalize draft", models.StatusPending, models.StatusSubmitted, service.TriggerFinalize, nil},
		{"open first round", models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened, nil},
		{"round closes with revisions", models.StatusUnderReview, models.StatusRevisionsRequired, service.TriggerRoundClosed, nil},
		{"editor accepts", models.StatusUnderReview, models.StatusAccepted, service.TriggerEditorialDecision, nil},
		{"round closes with reject", models.StatusUnderReview, models.StatusRejected, service.TriggerRoundClosed, nil},
		{"author resubmits", models.StatusRevisionsRequired, models.StatusUnderReview, service.TriggerResubmission, nil},
		{"editor reopens", models.StatusRevisionsRequired, models.StatusUnderReview, service.TriggerRoundOpened, nil},
		{"override from submitted", models.StatusSubmitted, models.StatusRejected, service.TriggerEditorialOverride, nil},
		{"override from draft", models.StatusPending, models.StatusRejected, service.TriggerEditorialOverride, nil},
		{"accept without review", models.StatusSubmitted, models.StatusAccepted, service.TriggerEditorialDecision, service.ErrIllegalTransition},
		{"skip finalize", models.StatusPending, models.StatusUnderReview, service.TriggerRoundOpened, service.ErrIllegalTransition},
		{"wrong trigger on edge", models.StatusSubmitted, models.StatusUnderReview, service.TriggerResubmission, service.ErrIllegalTransition},
		{"override cannot accept", models.StatusSubmitted, models.StatusAccepted, service.TriggerEditorialOverride, service.ErrIllegalTransition},
		{"from accepted", models.StatusAccepted, models.StatusRejected, service.TriggerEditorialOverride, service.ErrTerminalState},
		{"from rejected", models.StatusRejected, models.StatusUnderReview, service.TriggerRoundOpened, service.ErrTerminalState},
		{"unknown target", models.StatusSubmitted, models.SubmissionStatus("archived"), service.TriggerEditorialDecision, service.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.CheckTransition(tt.from, tt.to, tt.trigger)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("CheckTransition() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("CheckTransition() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIllegalTransitionNamesStates(t *testing.T) {
	err := service.CheckTransition(models.StatusSubmitted, models.StatusAccepted, service.TriggerEditorialDecision)

	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *service.Error, got %T", err)
	}
	if svcErr.From != models.StatusSubmitted || svcErr.To != models.StatusAccepted {
		t.Errorf("error names %s -> %s, want submitted -> accepted", svcErr.From, svcErr.To)
	}
}

func TestTransitionsTable(t *testing.T) {
	table := service.Transitions()

	seen := map[[2]models.SubmissionStatus][]service.Trigger{}
	for _, edge := range table {
		if !edge.From.Valid() || !edge.To.Valid() {
			t.Errorf("edge %s -> %s uses an undefined status", edge.From, edge.To)
		}
		if edge.From.Terminal() {
			t.Errorf("edge leaves terminal state %s", edge.From)
		}
		seen[[2]models.SubmissionStatus{edge.From, edge.To}] = edge.Triggers
		for _, trigger := range edge.Triggers {
			if err := service.CheckTransition(edge.From, edge.To, trigger); err != nil {
				t.Errorf("published edge %s -> %s (%s) rejected: %v", edge.From, edge.To, trigger, err)
			}
		}
	}

	for _, from := range models.AllStatuses {
		if from.Terminal() {
			continue
		}
		if _, ok := seen[[2]models.SubmissionStatus{from, models.StatusRejected}]; !ok {
			t.Errorf("missing override edge %s -> rejected", from)
		}
	}

	// mutating the returned table must not affect the engine
	table[0].Triggers[0] = "tampered"
	if service.Transitions()[0].Triggers[0] == "tampered" {
		t.Error("Transitions() returned shared state")
	}
}
