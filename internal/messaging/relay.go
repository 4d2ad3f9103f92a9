// Package messaging defines the contract with the external messaging relay
// that carries comments, questions and decision letters for a review round.
package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"manuscript-review/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrMessageNotFound is returned for unknown message IDs
	ErrMessageNotFound = errors.New("message not found")
	// ErrAlreadyResponded is returned when a message already carries a response
	ErrAlreadyResponded = errors.New("message already has a response")
)

// Relay stores and forwards round messages
type Relay interface {
	Post(ctx context.Context, msg models.Message) (*models.Message, error)
	Get(ctx context.Context, messageID string) (*models.Message, error)
	Respond(ctx context.Context, messageID string, response models.MessageResponse) (*models.Message, error)
	CountByRound(ctx context.Context, roundID uint) (int, error)
}

// MemoryRelay is an in-process Relay
type MemoryRelay struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	now      func() time.Time
}

// NewMemoryRelay creates an empty relay
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{
		messages: make(map[string]*models.Message),
		now:      time.Now,
	}
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	if m.Response != nil {
		resp := *m.Response
		cp.Response = &resp
	}
	return &cp
}

// Post assigns an ID and timestamp and stores the message
func (r *MemoryRelay) Post(ctx context.Context, msg models.Message) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.now().UTC()
	msg.Response = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = &msg
	return cloneMessage(&msg), nil
}

// Get returns a message by ID
func (r *MemoryRelay) Get(ctx context.Context, messageID string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

// Respond attaches the single response a message may carry
func (r *MemoryRelay) Respond(ctx context.Context, messageID string, response models.MessageResponse) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if msg.Response != nil {
		return nil, ErrAlreadyResponded
	}
	if response.RespondedAt.IsZero() {
		response.RespondedAt = r.now().UTC()
	}
	msg.Response = &response
	return cloneMessage(msg), nil
}

// CountByRound counts the messages posted to a round
func (r *MemoryRelay) CountByRound(ctx context.Context, roundID uint) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, msg := range r.messages {
		if msg.RoundID == roundID {
			count++
		}
	}
	return count, nil
}
