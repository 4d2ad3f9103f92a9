package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/service"
)

var (
	editor      = models.Actor{ID: 1, Role: models.RoleEditor}
	admin       = models.Actor{ID: 2, Role: models.RoleAdmin}
	author      = models.Actor{ID: 10, Role: models.RoleAuthor}
	otherAuthor = models.Actor{ID: 11, Role: models.RoleAuthor}
	reviewerA   = models.Actor{ID: 20, Role: models.RoleReviewer}
	reviewerB   = models.Actor{ID: 21, Role: models.RoleReviewer}
	reviewerC   = models.Actor{ID: 22, Role: models.RoleReviewer}
)

// recordingNotifier captures committed event batches
type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]models.LifecycleEvent
}

func (n *recordingNotifier) Notify(_ context.Context, events []models.LifecycleEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, append([]models.LifecycleEvent(nil), events...))
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, b := range n.batches {
		total += len(b)
	}
	return total
}

// prefixSealer marks stored comments so tests can tell sealed from opened text
type prefixSealer struct{}

func (prefixSealer) Seal(_ context.Context, plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (prefixSealer) Open(_ context.Context, stored string) (string, error) {
	return strings.TrimPrefix(stored, "sealed:"), nil
}

type harness struct {
	ctx      context.Context
	store    *repository.MemoryStore
	svc      *service.Services
	notifier *recordingNotifier
}

func newHarness(t *testing.T, mutate ...func(*service.Options)) *harness {
	t.Helper()

	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	notifier := &recordingNotifier{}
	opts := service.Options{
		Workflow: config.WorkflowConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Sealer:   prefixSealer{},
		Notifier: notifier,
		Clock:    clock,
	}
	for _, m := range mutate {
		m(&opts)
	}

	store := repository.NewMemoryStore()
	return &harness{
		ctx:      context.Background(),
		store:    store,
		svc:      service.NewServices(store, service.DefaultPolicy(), opts),
		notifier: notifier,
	}
}

func (h *harness) submit(t *testing.T, as models.Actor, title string) *models.Submission {
	t.Helper()
	sub, err := h.svc.Submissions.Create(h.ctx, as, service.CreateSubmissionInput{
		Title:         title,
		Abstract:      "An abstract about " + title,
		Keywords:      []string{"Graphs", "algorithms"},
		JournalID:     "jcs",
		ManuscriptRef: "s3://manuscripts/" + strings.ReplaceAll(title, " ", "-") + ".pdf",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sub
}

func (h *harness) openRound(t *testing.T, submissionID uint) *models.ReviewRound {
	t.Helper()
	round, err := h.svc.Rounds.Open(h.ctx, editor, submissionID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return round
}

func (h *harness) assign(t *testing.T, roundID uint, reviewer models.Actor) *models.ReviewerAssignment {
	t.Helper()
	a, err := h.svc.Assignments.Assign(h.ctx, editor, roundID, reviewer.ID)
	if err != nil {
		t.Fatalf("Assign(reviewer %d) error = %v", reviewer.ID, err)
	}
	return a
}

func (h *harness) respond(t *testing.T, a *models.ReviewerAssignment, reviewer models.Actor, rec models.Recommendation) {
	t.Helper()
	if _, err := h.svc.Assignments.RecordResponse(h.ctx, reviewer, a.ID, rec, "looks "+string(rec)); err != nil {
		t.Fatalf("RecordResponse() error = %v", err)
	}
}

func (h *harness) status(t *testing.T, submissionID uint) models.SubmissionStatus {
	t.Helper()
	sub, err := h.store.GetSubmission(h.ctx, submissionID)
	if err != nil || sub == nil {
		t.Fatalf("GetSubmission(%d) = %v, %v", submissionID, sub, err)
	}
	return sub.Status
}

func (h *harness) transitions(t *testing.T, submissionID uint) []models.LifecycleEvent {
	t.Helper()
	events, err := h.store.ListEvents(h.ctx, submissionID)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	var out []models.LifecycleEvent
	for _, e := range events {
		if e.Kind.Transition() {
			out = append(out, e)
		}
	}
	return out
}

func statusPtr(s models.SubmissionStatus) *models.SubmissionStatus { return &s }
