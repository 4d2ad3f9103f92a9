package models

import (
	"time"
)

// Role is the identity directory role of an actor
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleAuthor, RoleReviewer:
		return true
	}
	return false
}

// Actor is the resolved identity performing an operation
type Actor struct {
	ID   uint `json:"id"`
	Role Role `json:"role"`
}

// SubmissionStatus is the lifecycle state of a submission
type SubmissionStatus string

const (
	StatusPending           SubmissionStatus = "pending"
	StatusSubmitted         SubmissionStatus = "submitted"
	StatusUnderReview       SubmissionStatus = "under_review"
	StatusRevisionsRequired SubmissionStatus = "revisions_required"
	StatusAccepted          SubmissionStatus = "accepted"
	StatusRejected          SubmissionStatus = "rejected"
)

// AllStatuses lists every defined submission status in lifecycle order
var AllStatuses = []SubmissionStatus{
	StatusPending,
	StatusSubmitted,
	StatusUnderReview,
	StatusRevisionsRequired,
	StatusAccepted,
	StatusRejected,
}

// Valid reports whether s is a defined status
func (s SubmissionStatus) Valid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are permitted from s
func (s SubmissionStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ReviewStarted reports whether the manuscript is locked for review
func (s SubmissionStatus) ReviewStarted() bool {
	return s != StatusPending && s != StatusSubmitted
}

// Recommendation is a reviewer's verdict on a round
type Recommendation string

const (
	RecommendAccept         Recommendation = "accept"
	RecommendMinorRevisions Recommendation = "minor_revisions"
	RecommendMajorRevisions Recommendation = "major_revisions"
	RecommendReject         Recommendation = "reject"
)

// AllRecommendations lists recommendations from least to most severe
var AllRecommendations = []Recommendation{
	RecommendAccept,
	RecommendMinorRevisions,
	RecommendMajorRevisions,
	RecommendReject,
}

// Valid reports whether r is a known recommendation
func (r Recommendation) Valid() bool {
	for _, rec := range AllRecommendations {
		if r == rec {
			return true
		}
	}
	return false
}

// Submission represents a manuscript under editorial control
type Submission struct {
	ID            uint             `json:"id" db:"id"`
	Title         string           `json:"title" db:"title"`
	Abstract      string           `json:"abstract" db:"abstract"`
	Keywords      []string         `json:"keywords" db:"keywords"`
	AuthorID      uint             `json:"author_id" db:"author_id"`
	JournalID     string           `json:"journal_id" db:"journal_id"`
	IssueID       *string          `json:"issue_id,omitempty" db:"issue_id"`
	ManuscriptRef string           `json:"manuscript_ref" db:"manuscript_ref"`
	Status        SubmissionStatus `json:"status" db:"status"`
	SubmittedAt   time.Time        `json:"submitted_at" db:"submitted_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// SubmissionFilter narrows a submission listing
type SubmissionFilter struct {
	Status     *SubmissionStatus
	JournalID  string
	AuthorID   *uint
	ReviewerID *uint // only submissions the reviewer holds an assignment on
	Search     string
}

// SubmissionPage is one page of a submission listing
type SubmissionPage struct {
	Items    []Submission `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Total    int          `json:"total"`
}

// ReviewRound is one cycle of peer review for a submission
type ReviewRound struct {
	ID           uint              `json:"id" db:"id"`
	SubmissionID uint              `json:"submission_id" db:"submission_id"`
	Sequence     int               `json:"sequence" db:"sequence"`
	OpenedAt     time.Time         `json:"opened_at" db:"opened_at"`
	OpenedBy     uint              `json:"opened_by" db:"opened_by"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty" db:"closed_at"`
	ClosedBy     *uint             `json:"closed_by,omitempty" db:"closed_by"`
	Forced       bool              `json:"forced" db:"forced"`
	Outcome      *SubmissionStatus `json:"outcome,omitempty" db:"outcome"`
}

// IsOpen reports whether the round still accepts assignments and responses
func (r *ReviewRound) IsOpen() bool {
	return r.ClosedAt == nil
}

// ReviewerAssignment binds one reviewer to one round
type ReviewerAssignment struct {
	ID             uint            `json:"id" db:"id"`
	RoundID        uint            `json:"round_id" db:"round_id"`
	SubmissionID   uint            `json:"submission_id" db:"submission_id"`
	ReviewerID     uint            `json:"reviewer_id" db:"reviewer_id"`
	AssignedBy     uint            `json:"assigned_by" db:"assigned_by"`
	AssignedAt     time.Time       `json:"assigned_at" db:"assigned_at"`
	Comment        *string         `json:"comment,omitempty" db:"comment"`
	CommentedAt    *time.Time      `json:"commented_at,omitempty" db:"commented_at"`
	Recommendation *Recommendation `json:"recommendation,omitempty" db:"recommendation"`
}

// Completed reports whether the reviewer has submitted a recommendation
func (a *ReviewerAssignment) Completed() bool {
	return a.Recommendation != nil
}

// RevisionKind distinguishes major from minor revision requests
type RevisionKind string

const (
	RevisionMinor RevisionKind = "minor"
	RevisionMajor RevisionKind = "major"
)

// RoundOutcome summarises the recommendations recorded in a round
type RoundOutcome struct {
	RoundID      uint                   `json:"round_id"`
	Counts       map[Recommendation]int `json:"counts"`
	Total        int                    `json:"total"`
	Responded    int                    `json:"responded"`
	Complete     bool                   `json:"complete"`
	Proposal     *SubmissionStatus      `json:"proposal,omitempty"`
	RevisionKind *RevisionKind          `json:"revision_kind,omitempty"`
}

// EventKind names an entry in the lifecycle event stream
type EventKind string

const (
	EventSubmissionCreated   EventKind = "submission.created"
	EventStatusChanged       EventKind = "status.changed"
	EventRoundOpened         EventKind = "round.opened"
	EventRoundClosed         EventKind = "round.closed"
	EventAssignmentCreated   EventKind = "assignment.created"
	EventAssignmentResponded EventKind = "assignment.responded"
	EventAssignmentRemoved   EventKind = "assignment.removed"
	EventManuscriptUpdated   EventKind = "manuscript.updated"
)

// Transition reports whether the event records a submission status change
func (k EventKind) Transition() bool {
	return k == EventSubmissionCreated || k == EventStatusChanged
}

// LifecycleEvent is an append-only audit record for a submission
type LifecycleEvent struct {
	ID           uint             `json:"id" db:"id"`
	SubmissionID uint             `json:"submission_id" db:"submission_id"`
	ActorID      uint             `json:"actor_id" db:"actor_id"`
	ActorRole    Role             `json:"actor_role" db:"actor_role"`
	Kind         EventKind        `json:"kind" db:"kind"`
	FromState    SubmissionStatus `json:"from_state,omitempty" db:"from_state"`
	ToState      SubmissionStatus `json:"to_state,omitempty" db:"to_state"`
	Trigger      string           `json:"trigger,omitempty" db:"trigger"`
	RoundID      *uint            `json:"round_id,omitempty" db:"round_id"`
	AssignmentID *uint            `json:"assignment_id,omitempty" db:"assignment_id"`
	Detail       string           `json:"detail,omitempty" db:"detail"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	PrevHash     string           `json:"prev_hash" db:"prev_hash"`
	Hash         string           `json:"hash" db:"hash"`
}

// ChainVerification is the result of re-hashing a submission's event stream
type ChainVerification struct {
	SubmissionID uint     `json:"submission_id"`
	Events       int      `json:"events"`
	Valid        bool     `json:"valid"`
	Problems     []string `json:"problems,omitempty"`
}

// MessageType tags a message exchanged within a round
type MessageType string

const (
	MessageComment        MessageType = "comment"
	MessageQuestion       MessageType = "question"
	MessageDecisionLetter MessageType = "decision_letter"
)

// Message is the shape the messaging relay accepts for a round
type Message struct {
	ID        string           `json:"id"`
	RoundID   uint             `json:"round_id"`
	SenderID  uint             `json:"sender_id"`
	Content   string           `json:"content"`
	Type      MessageType      `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Response  *MessageResponse `json:"response,omitempty"`
}

// MessageResponse is the single reply a message may carry
type MessageResponse struct {
	Text        string    `json:"text"`
	ResponderID uint      `json:"responder_id"`
	RespondedAt time.Time `json:"responded_at"`
}
