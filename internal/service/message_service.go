package service

import (
	"context"
	"errors"

	"manuscript-review/internal/messaging"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/pkg/validator"
)

// PostMessageInput is the payload for posting a round message
type PostMessageInput struct {
	Content string             `json:"content" validate:"required,max=20000"`
	Type    models.MessageType `json:"type" validate:"required,oneof=comment question decision_letter"`
}

// MessageService guards access to the messaging relay for review rounds
type MessageService struct {
	store  repository.Store
	policy *Policy
	relay  messaging.Relay
}

// NewMessageService creates a new message service
func NewMessageService(store repository.Store, policy *Policy, relay messaging.Relay) *MessageService {
	return &MessageService{store: store, policy: policy, relay: relay}
}

func (s *MessageService) authorizeRound(ctx context.Context, actor models.Actor, operation string, roundID uint) error {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return err
	}
	if round == nil {
		return notFound("round", roundID)
	}
	sub, err := s.store.GetSubmission(ctx, round.SubmissionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return notFound("submission", round.SubmissionID)
	}
	rel, err := relationTo(ctx, s.store, actor, sub)
	if err != nil {
		return err
	}
	return s.policy.Authorize(operation, actor, rel)
}

// Post sends a message on behalf of the actor
func (s *MessageService) Post(ctx context.Context, actor models.Actor, roundID uint, in PostMessageInput) (*models.Message, error) {
	if err := validator.ValidateStruct(&in); err != nil {
		return nil, validationError("%s", err.Error())
	}
	if err := s.authorizeRound(ctx, actor, OpMessagePost, roundID); err != nil {
		return nil, err
	}
	if in.Type == models.MessageDecisionLetter && actor.Role != models.RoleEditor {
		return nil, forbidden("post a decision letter", actor)
	}
	return s.relay.Post(ctx, models.Message{
		RoundID:  roundID,
		SenderID: actor.ID,
		Content:  validator.SanitizeString(in.Content),
		Type:     in.Type,
	})
}

// Respond attaches the actor's reply to a message
func (s *MessageService) Respond(ctx context.Context, actor models.Actor, messageID, text string) (*models.Message, error) {
	text = validator.SanitizeString(text)
	if text == "" {
		return nil, validationError("text is required")
	}
	msg, err := s.relay.Get(ctx, messageID)
	if errors.Is(err, messaging.ErrMessageNotFound) {
		return nil, &Error{Kind: KindNotFound, Message: "message " + messageID + " not found"}
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRound(ctx, actor, OpMessageRespond, msg.RoundID); err != nil {
		return nil, err
	}
	if msg.SenderID == actor.ID {
		return nil, validationError("a message cannot be answered by its sender")
	}

	answered, err := s.relay.Respond(ctx, messageID, models.MessageResponse{Text: text, ResponderID: actor.ID})
	if errors.Is(err, messaging.ErrAlreadyResponded) {
		return nil, conflict(CodeAlreadyResponded, "message %s already has a response", messageID)
	}
	return answered, err
}

// CountByRound counts the messages posted to a round
func (s *MessageService) CountByRound(ctx context.Context, actor models.Actor, roundID uint) (int, error) {
	if err := s.authorizeRound(ctx, actor, OpMessageCount, roundID); err != nil {
		return 0, err
	}
	return s.relay.CountByRound(ctx, roundID)
}
