package service_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

type transitionStep struct {
	from    models.SubmissionStatus
	to      models.SubmissionStatus
	trigger service.Trigger
}

func assertTransitions(t *testing.T, h *harness, submissionID uint, want []transitionStep) {
	t.Helper()
	got := h.transitions(t, submissionID)
	if len(got) != len(want) {
		for _, e := range got {
			t.Logf("  %s -> %s (%s)", e.FromState, e.ToState, e.Trigger)
		}
		t.Fatalf("recorded %d transitions, want %d", len(got), len(want))
	}
	for i, step := range want {
		e := got[i]
		if e.FromState != step.from || e.ToState != step.to || e.Trigger != string(step.trigger) {
			t.Errorf("transition %d = %s -> %s (%s), want %s -> %s (%s)",
				i, e.FromState, e.ToState, e.Trigger, step.from, step.to, step.trigger)
		}
	}
}

func TestEndToEndReviewWithRevision(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Sparse graph colouring")

	if sub.Status != models.StatusSubmitted {
		t.Fatalf("new submission status = %s, want submitted", sub.Status)
	}

	// round one: two accepts and a minor revision
	r1 := h.openRound(t, sub.ID)
	if r1.Sequence != 1 {
		t.Errorf("first round sequence = %d, want 1", r1.Sequence)
	}
	if got := h.status(t, sub.ID); got != models.StatusUnderReview {
		t.Fatalf("status after opening round = %s, want under_review", got)
	}
	a1 := h.assign(t, r1.ID, reviewerA)
	b1 := h.assign(t, r1.ID, reviewerB)
	c1 := h.assign(t, r1.ID, reviewerC)
	h.respond(t, a1, reviewerA, models.RecommendAccept)
	h.respond(t, b1, reviewerB, models.RecommendMinorRevisions)
	h.respond(t, c1, reviewerC, models.RecommendAccept)

	outcome, err := h.svc.Rounds.Outcome(h.ctx, editor, r1.ID)
	if err != nil {
		t.Fatalf("Outcome() error = %v", err)
	}
	if !outcome.Complete || *outcome.Proposal != models.StatusRevisionsRequired || *outcome.RevisionKind != models.RevisionMinor {
		t.Errorf("round one outcome = %+v", outcome)
	}

	closed, err := h.svc.Rounds.Close(h.ctx, editor, r1.ID, service.CloseOptions{})
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if closed.IsOpen() || closed.Forced || closed.Outcome == nil || *closed.Outcome != models.StatusRevisionsRequired {
		t.Errorf("closed round = %+v", closed)
	}
	if got := h.status(t, sub.ID); got != models.StatusRevisionsRequired {
		t.Fatalf("status after round one = %s, want revisions_required", got)
	}

	// round two: unanimous, then an explicit decision
	r2 := h.openRound(t, sub.ID)
	if r2.Sequence != 2 {
		t.Errorf("second round sequence = %d, want 2", r2.Sequence)
	}
	a2 := h.assign(t, r2.ID, reviewerA)
	b2 := h.assign(t, r2.ID, reviewerB)
	h.respond(t, a2, reviewerA, models.RecommendAccept)
	h.respond(t, b2, reviewerB, models.RecommendAccept)

	decided, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusAccepted, "accepted after minor revision")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decided.Status != models.StatusAccepted {
		t.Fatalf("status after decision = %s, want accepted", decided.Status)
	}

	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened},
		{models.StatusUnderReview, models.StatusRevisionsRequired, service.TriggerRoundClosed},
		{models.StatusRevisionsRequired, models.StatusUnderReview, service.TriggerRoundOpened},
		{models.StatusUnderReview, models.StatusAccepted, service.TriggerEditorialDecision},
	})

	rounds, err := h.svc.Rounds.ListBySubmission(h.ctx, editor, sub.ID)
	if err != nil {
		t.Fatalf("ListBySubmission() error = %v", err)
	}
	if len(rounds) != 2 || rounds[1].IsOpen() {
		t.Fatalf("rounds = %+v, want two closed rounds", rounds)
	}
	if !rounds[1].Forced || rounds[1].Outcome == nil || *rounds[1].Outcome != models.StatusAccepted {
		t.Errorf("decision should force-close round two with outcome accepted, got %+v", rounds[1])
	}

	verification, err := h.svc.Audit.VerifyChain(h.ctx, admin, sub.ID)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if !verification.Valid {
		t.Errorf("event chain invalid: %v", verification.Problems)
	}
}

func TestRejectedSubmissionIsTerminal(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Negative results")

	r1 := h.openRound(t, sub.ID)
	a := h.assign(t, r1.ID, reviewerA)
	b := h.assign(t, r1.ID, reviewerB)
	h.respond(t, a, reviewerA, models.RecommendReject)
	h.respond(t, b, reviewerB, models.RecommendAccept)

	if _, err := h.svc.Rounds.Close(h.ctx, editor, r1.ID, service.CloseOptions{}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := h.status(t, sub.ID); got != models.StatusRejected {
		t.Fatalf("status = %s, want rejected", got)
	}

	if _, err := h.svc.Rounds.Open(h.ctx, editor, sub.ID); !errors.Is(err, service.ErrTerminalState) {
		t.Errorf("Open() on rejected submission error = %v, want ErrTerminalState", err)
	}
	if _, err := h.svc.Engine.Resubmit(h.ctx, author, sub.ID, ""); !errors.Is(err, service.ErrTerminalState) {
		t.Errorf("Resubmit() error = %v, want ErrTerminalState", err)
	}
	if _, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusAccepted, ""); !errors.Is(err, service.ErrTerminalState) {
		t.Errorf("Decide() error = %v, want ErrTerminalState", err)
	}
	if _, err := h.svc.Assignments.Assign(h.ctx, editor, r1.ID, reviewerC.ID); !errors.Is(err, service.ErrTerminalState) {
		t.Errorf("Assign() error = %v, want ErrTerminalState", err)
	}

	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened},
		{models.StatusUnderReview, models.StatusRejected, service.TriggerRoundClosed},
	})
}

func TestConcurrentRoundOpenHasOneWinner(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Race conditions")

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Rounds.Open(h.ctx, editor, sub.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, service.ErrRoundAlreadyOpen):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != callers-1 || len(others) != 0 {
		t.Fatalf("successes=%d conflicts=%d others=%v", successes, conflicts, others)
	}
	rounds, _ := h.store.ListRounds(h.ctx, sub.ID)
	if len(rounds) != 1 {
		t.Errorf("stored rounds = %d, want 1", len(rounds))
	}
	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened},
	})
}

func TestCloseRacesRecordResponse(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 50; i++ {
		sub := h.submit(t, author, "Close race")
		round := h.openRound(t, sub.ID)
		a := h.assign(t, round.ID, reviewerA)
		b := h.assign(t, round.ID, reviewerB)
		h.respond(t, a, reviewerA, models.RecommendAccept)

		var (
			wg       sync.WaitGroup
			start    = make(chan struct{})
			closeErr error
			respErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, respErr = h.svc.Assignments.RecordResponse(h.ctx, reviewerB, b.ID, models.RecommendMinorRevisions, "tighten section 3")
		}()
		go func() {
			defer wg.Done()
			<-start
			_, closeErr = h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{})
		}()
		close(start)
		wg.Wait()

		if respErr != nil {
			t.Fatalf("iteration %d: RecordResponse() error = %v", i, respErr)
		}
		stored, _ := h.store.GetRound(h.ctx, round.ID)
		status := h.status(t, sub.ID)

		if closeErr != nil {
			if !errors.Is(closeErr, service.ErrIncompleteRound) {
				t.Fatalf("iteration %d: Close() error = %v, want ErrIncompleteRound", i, closeErr)
			}
			if !stored.IsOpen() || status != models.StatusUnderReview {
				t.Fatalf("iteration %d: failed close left round open=%v status=%s", i, stored.IsOpen(), status)
			}
			continue
		}

		// a successful close must have seen the second recommendation
		if stored.IsOpen() || stored.Outcome == nil || *stored.Outcome != models.StatusRevisionsRequired {
			t.Fatalf("iteration %d: closed round = %+v, want outcome revisions_required", i, stored)
		}
		if status != models.StatusRevisionsRequired {
			t.Fatalf("iteration %d: status = %s, want revisions_required", i, status)
		}
		got, _ := h.store.GetAssignment(h.ctx, b.ID)
		if got == nil || !got.Completed() {
			t.Fatalf("iteration %d: round closed without the second recommendation", i)
		}
	}
}

func TestConcurrentDuplicateAssignment(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Duplicate reviewers")
	round := h.openRound(t, sub.ID)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Assignments.Assign(h.ctx, editor, round.ID, reviewerA.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, service.ErrDuplicateAssignment) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successful assignments = %d, want 1", successes)
	}

	list, err := h.svc.Assignments.ListByRound(h.ctx, editor, round.ID)
	if err != nil {
		t.Fatalf("ListByRound() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("assignments = %d, want 1", len(list))
	}
}

func TestRecordedRecommendationIsFinal(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Immutable reviews")
	round := h.openRound(t, sub.ID)
	a := h.assign(t, round.ID, reviewerA)
	h.assign(t, round.ID, reviewerB)
	h.respond(t, a, reviewerA, models.RecommendMajorRevisions)

	_, err := h.svc.Assignments.RecordResponse(h.ctx, reviewerA, a.ID, models.RecommendAccept, "changed my mind")
	if !errors.Is(err, service.ErrAlreadySubmitted) {
		t.Errorf("second RecordResponse() error = %v, want ErrAlreadySubmitted", err)
	}
	if err := h.svc.Assignments.Remove(h.ctx, editor, a.ID); !errors.Is(err, service.ErrCannotRemoveCompleted) {
		t.Errorf("Remove() error = %v, want ErrCannotRemoveCompleted", err)
	}

	stored, _ := h.store.GetAssignment(h.ctx, a.ID)
	if stored == nil || stored.Recommendation == nil || *stored.Recommendation != models.RecommendMajorRevisions {
		t.Errorf("stored assignment = %+v, want major_revisions", stored)
	}
}

func TestRoundSequencesAreGapless(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Many rounds")

	for want := 1; want <= 4; want++ {
		round := h.openRound(t, sub.ID)
		if round.Sequence != want {
			t.Fatalf("round sequence = %d, want %d", round.Sequence, want)
		}
		closed, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{Forced: true, Note: "no reviewers found"})
		if err != nil {
			t.Fatalf("forced Close() error = %v", err)
		}
		if !closed.Forced || closed.Outcome != nil {
			t.Errorf("forced close without responses = %+v", closed)
		}
	}

	if got := h.status(t, sub.ID); got != models.StatusUnderReview {
		t.Errorf("status = %s, want under_review", got)
	}
	// forced closes without a decision record no transition
	if got := len(h.transitions(t, sub.ID)); got != 2 {
		t.Errorf("transitions = %d, want 2", got)
	}
}

func TestCloseRequiresEveryRecommendation(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Slow reviewers")
	round := h.openRound(t, sub.ID)

	_, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{})
	if !errors.Is(err, service.ErrIncompleteRound) {
		t.Errorf("Close() on empty round error = %v, want ErrIncompleteRound", err)
	} else if !strings.Contains(err.Error(), "no assignments") {
		t.Errorf("Close() on empty round message = %q", err.Error())
	}

	a := h.assign(t, round.ID, reviewerA)
	h.assign(t, round.ID, reviewerB)
	h.respond(t, a, reviewerA, models.RecommendReject)

	if _, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{}); !errors.Is(err, service.ErrIncompleteRound) {
		t.Errorf("Close() error = %v, want ErrIncompleteRound", err)
	}

	// forced close keeps the reviewers' proposal but leaves the status alone
	closed, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{Forced: true})
	if err != nil {
		t.Fatalf("forced Close() error = %v", err)
	}
	if closed.Outcome == nil || *closed.Outcome != models.StatusRejected {
		t.Errorf("forced close outcome = %v, want rejected", closed.Outcome)
	}
	if got := h.status(t, sub.ID); got != models.StatusUnderReview {
		t.Errorf("status = %s, want under_review", got)
	}

	if _, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{Forced: true}); !errors.Is(err, service.ErrRoundClosed) {
		t.Errorf("closing twice error = %v, want ErrRoundClosed", err)
	}
	if _, err := h.svc.Assignments.RecordResponse(h.ctx, reviewerB, 0, models.RecommendAccept, ""); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("RecordResponse() unknown assignment error = %v, want ErrNotFound", err)
	}
}

func TestCloseWithEditorialDecision(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Editor knows best")
	round := h.openRound(t, sub.ID)
	a := h.assign(t, round.ID, reviewerA)
	h.respond(t, a, reviewerA, models.RecommendAccept)

	illegal := statusPtr(models.StatusPending)
	if _, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{Decision: illegal}); !errors.Is(err, service.ErrIllegalTransition) {
		t.Fatalf("Close() to pending error = %v, want ErrIllegalTransition", err)
	}
	if open, _ := h.store.GetOpenRound(h.ctx, sub.ID); open == nil {
		t.Fatal("failed close must leave the round open")
	}

	if _, err := h.svc.Rounds.Close(h.ctx, editor, round.ID, service.CloseOptions{Decision: statusPtr(models.StatusRevisionsRequired), Note: "needs a proof"}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened},
		{models.StatusUnderReview, models.StatusRevisionsRequired, service.TriggerEditorialDecision},
	})
}

func TestDecideAndResubmit(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Back and forth")

	if _, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusAccepted, ""); !errors.Is(err, service.ErrIllegalTransition) {
		t.Errorf("Decide(accepted) before review error = %v, want ErrIllegalTransition", err)
	}

	round := h.openRound(t, sub.ID)
	h.assign(t, round.ID, reviewerA)

	if _, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusRevisionsRequired, "please clarify"); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if open, _ := h.store.GetOpenRound(h.ctx, sub.ID); open != nil {
		t.Fatalf("decision should close round %d", open.ID)
	}
	closed, _ := h.store.GetRound(h.ctx, round.ID)
	if !closed.Forced {
		t.Error("round closed by a decision should be marked forced")
	}

	if _, err := h.svc.Engine.Resubmit(h.ctx, otherAuthor, sub.ID, ""); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Resubmit() by another author error = %v, want ErrForbidden", err)
	}
	resubmitted, err := h.svc.Engine.Resubmit(h.ctx, author, sub.ID, "revised version uploaded")
	if err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if resubmitted.Status != models.StatusUnderReview {
		t.Errorf("status after resubmission = %s", resubmitted.Status)
	}
	if _, err := h.svc.Engine.Resubmit(h.ctx, author, sub.ID, ""); !errors.Is(err, service.ErrIllegalTransition) {
		t.Errorf("second Resubmit() error = %v, want ErrIllegalTransition", err)
	}

	// a resubmitted manuscript gets a fresh round without another transition
	r2 := h.openRound(t, sub.ID)
	if r2.Sequence != 2 {
		t.Errorf("round after resubmission sequence = %d, want 2", r2.Sequence)
	}

	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusUnderReview, service.TriggerRoundOpened},
		{models.StatusUnderReview, models.StatusRevisionsRequired, service.TriggerEditorialDecision},
		{models.StatusRevisionsRequired, models.StatusUnderReview, service.TriggerResubmission},
	})
}

func TestEditorialOverrideRejectsBeforeReview(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Out of scope")

	decided, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusRejected, "desk reject")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decided.Status != models.StatusRejected {
		t.Fatalf("status = %s, want rejected", decided.Status)
	}
	assertTransitions(t, h, sub.ID, []transitionStep{
		{"", models.StatusSubmitted, service.TriggerCreated},
		{models.StatusSubmitted, models.StatusRejected, service.TriggerEditorialOverride},
	})

	if _, err := h.svc.Engine.Decide(h.ctx, admin, sub.ID, models.StatusRejected, ""); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("Decide() by admin error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.Engine.Decide(h.ctx, editor, 4242, models.StatusRejected, ""); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Decide() unknown submission error = %v, want ErrNotFound", err)
	}
}

func TestAutoCloseOnLastRecommendation(t *testing.T) {
	h := newHarness(t, func(o *service.Options) { o.Workflow.AutoCloseRounds = true })
	sub := h.submit(t, author, "Fast track")
	round := h.openRound(t, sub.ID)
	a := h.assign(t, round.ID, reviewerA)
	b := h.assign(t, round.ID, reviewerB)

	h.respond(t, a, reviewerA, models.RecommendAccept)
	if open, _ := h.store.GetOpenRound(h.ctx, sub.ID); open == nil {
		t.Fatal("round closed before every reviewer responded")
	}

	h.respond(t, b, reviewerB, models.RecommendAccept)
	if open, _ := h.store.GetOpenRound(h.ctx, sub.ID); open != nil {
		t.Fatal("round should close after the last recommendation")
	}
	if got := h.status(t, sub.ID); got != models.StatusAccepted {
		t.Errorf("status = %s, want accepted", got)
	}
}

func TestFailedOperationsLeaveNoTrace(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Atomic updates")
	before, _ := h.store.ListEvents(h.ctx, sub.ID)
	notified := h.notifier.count()

	if notified != len(before) {
		t.Fatalf("notified %d events, stored %d", notified, len(before))
	}

	if _, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusAccepted, ""); err == nil {
		t.Fatal("expected Decide() to fail")
	}
	if _, err := h.svc.Rounds.Open(h.ctx, reviewerA, sub.ID); !errors.Is(err, service.ErrForbidden) {
		t.Fatalf("Open() by reviewer error = %v, want ErrForbidden", err)
	}

	after, _ := h.store.ListEvents(h.ctx, sub.ID)
	if len(after) != len(before) {
		t.Errorf("events grew from %d to %d after failed operations", len(before), len(after))
	}
	if h.notifier.count() != notified {
		t.Errorf("notifier received events from failed operations")
	}
	if got := h.status(t, sub.ID); got != models.StatusSubmitted {
		t.Errorf("status = %s, want submitted", got)
	}
}

func TestRecordedTransitionsFollowTable(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, author, "Audited path")
	r1 := h.openRound(t, sub.ID)
	a := h.assign(t, r1.ID, reviewerA)
	h.respond(t, a, reviewerA, models.RecommendMajorRevisions)
	if _, err := h.svc.Rounds.Close(h.ctx, editor, r1.ID, service.CloseOptions{}); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := h.svc.Engine.Resubmit(h.ctx, author, sub.ID, ""); err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if _, err := h.svc.Engine.Decide(h.ctx, editor, sub.ID, models.StatusRejected, ""); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	for _, e := range h.transitions(t, sub.ID) {
		if e.Kind == models.EventSubmissionCreated {
			continue
		}
		if err := service.CheckTransition(e.FromState, e.ToState, service.Trigger(e.Trigger)); err != nil {
			t.Errorf("recorded transition %s -> %s (%s) is not in the table: %v", e.FromState, e.ToState, e.Trigger, err)
		}
	}
}
