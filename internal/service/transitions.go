package service

import (
	"manuscript-review/internal/models"
)

// Trigger names the cause of a status transition
type Trigger string

const (
	TriggerCreated           Trigger = "created"
	TriggerFinalize          Trigger = "finalize"
	TriggerRoundOpened       Trigger = "round_opened"
	TriggerRoundClosed       Trigger = "round_closed"
	TriggerEditorialDecision Trigger = "editorial_decision"
	TriggerResubmission      Trigger = "resubmission"
	TriggerEditorialOverride Trigger = "editorial_override"
)

// Transition is one edge of the submission state machine
type Transition struct {
	From     models.SubmissionStatus `json:"from"`
	To       models.SubmissionStatus `json:"to"`
	Triggers []Trigger               `json:"triggers"`
}

var transitionTable = []Transition{
	{From: models.StatusPending, To: models.StatusSubmitted, Triggers: []Trigger{TriggerFinalize}},
	{From: models.StatusSubmitted, To: models.StatusUnderReview, Triggers: []Trigger{TriggerRoundOpened}},
	{From: models.StatusUnderReview, To: models.StatusRevisionsRequired, Triggers: []Trigger{TriggerRoundClosed, TriggerEditorialDecision}},
	{From: models.StatusUnderReview, To: models.StatusAccepted, Triggers: []Trigger{TriggerRoundClosed, TriggerEditorialDecision}},
	{From: models.StatusUnderReview, To: models.StatusRejected, Triggers: []Trigger{TriggerRoundClosed, TriggerEditorialDecision}},
	{From: models.StatusRevisionsRequired, To: models.StatusUnderReview, Triggers: []Trigger{TriggerResubmission, TriggerRoundOpened}},
}

// overrideEdges lets an editor reject from any non-terminal state
func overrideEdges() []Transition {
	var edges []Transition
	for _, from := range models.AllStatuses {
		if from.Terminal() || from == models.StatusUnderReview {
			continue
		}
		edges = append(edges, Transition{From: from, To: models.StatusRejected, Triggers: []Trigger{TriggerEditorialOverride}})
	}
	return edges
}

// Transitions returns a copy of the full transition table
func Transitions() []Transition {
	all := append(append([]Transition{}, transitionTable...), overrideEdges()...)
	out := make([]Transition, len(all))
	for i, t := range all {
		out[i] = Transition{From: t.From, To: t.To, Triggers: append([]Trigger{}, t.Triggers...)}
	}
	// under_review -> rejected also accepts the override trigger
	for i := range out {
		if out[i].From == models.StatusUnderReview && out[i].To == models.StatusRejected {
			out[i].Triggers = append(out[i].Triggers, TriggerEditorialOverride)
		}
	}
	return out
}

// CheckTransition validates a status change against the table
func CheckTransition(from, to models.SubmissionStatus, trigger Trigger) error {
	if !to.Valid() {
		return validationError("unknown status %q", to)
	}
	if from.Terminal() {
		return terminalState(from, to)
	}
	if trigger == TriggerEditorialOverride && to == models.StatusRejected {
		return nil
	}
	for _, edge := range transitionTable {
		if edge.From != from || edge.To != to {
			continue
		}
		for _, t := range edge.Triggers {
			if t == trigger {
				return nil
			}
		}
	}
	return illegalTransition(from, to)
}
