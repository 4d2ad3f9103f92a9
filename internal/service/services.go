package service

import (
	"time"

	"manuscript-review/internal/config"
	"manuscript-review/internal/messaging"
	"manuscript-review/internal/repository"
)

// Options wires the collaborators of the lifecycle services
type Options struct {
	Workflow config.WorkflowConfig
	Sealer   CommentSealer
	Relay    messaging.Relay
	Notifier EventNotifier
	Clock    func() time.Time
}

// Services groups the lifecycle services over one store
type Services struct {
	Engine      *DecisionEngine
	Submissions *SubmissionService
	Rounds      *RoundService
	Assignments *AssignmentService
	Audit       *AuditService
	Messages    *MessageService
}

// NewServices builds every lifecycle service around a shared decision engine
func NewServices(store repository.Store, policy *Policy, opts Options) *Services {
	var engineOpts []EngineOption
	if opts.Notifier != nil {
		engineOpts = append(engineOpts, WithNotifier(opts.Notifier))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, WithClock(opts.Clock))
	}
	if opts.Relay == nil {
		opts.Relay = messaging.NewMemoryRelay()
	}
	if opts.Workflow.DefaultPageSize <= 0 {
		opts.Workflow.DefaultPageSize = 20
	}
	if opts.Workflow.MaxPageSize < opts.Workflow.DefaultPageSize {
		opts.Workflow.MaxPageSize = 100
	}

	engine := NewDecisionEngine(store, policy, engineOpts...)
	rounds := NewRoundService(engine, store, policy)
	return &Services{
		Engine:      engine,
		Submissions: NewSubmissionService(engine, store, policy, opts.Workflow),
		Rounds:      rounds,
		Assignments: NewAssignmentService(engine, store, policy, rounds, opts.Sealer, opts.Workflow.AutoCloseRounds),
		Audit:       NewAuditService(store, policy),
		Messages:    NewMessageService(store, policy, opts.Relay),
	}
}
