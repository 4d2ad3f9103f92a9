package email

import (
	"context"
	"log/slog"
	"sync"

	"manuscript-review/internal/models"
)

// Notifier mails status changes to the editorial office. Events are queued
// and delivered by a background worker so SMTP latency never holds up a
// committed request.
type Notifier struct {
	service *Service
	queue   chan models.LifecycleEvent
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewNotifier creates a notifier with a bounded queue
func NewNotifier(service *Service, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Notifier{service: service, queue: make(chan models.LifecycleEvent, queueSize)}
}

// Start runs the delivery worker. It keeps draining the queue until Stop
// closes it, so mails queued during shutdown are still sent.
func (n *Notifier) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for event := range n.queue {
			if err := n.service.SendStatusChange(event); err != nil {
				slog.Error("Failed to deliver status change mail",
					"submission_id", event.SubmissionID,
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}()
}

// Stop closes the queue and waits for queued mails to be delivered
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

// Notify queues every status transition. Events that do not fit into the
// queue are dropped with a warning.
func (n *Notifier) Notify(_ context.Context, events []models.LifecycleEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, e := range events {
		if !e.Kind.Transition() {
			continue
		}
		select {
		case n.queue <- e:
		default:
			slog.Warn("Mail queue full, dropping status change",
				"submission_id", e.SubmissionID,
				"event_id", e.ID,
			)
		}
	}
}
