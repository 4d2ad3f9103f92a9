package service

import (
	"fmt"

	"manuscript-review/internal/models"
)

// ErrorKind classifies a lifecycle failure
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindTerminalState     ErrorKind = "terminal_state"
	KindForbidden         ErrorKind = "forbidden"
)

// Conflict codes
const (
	CodeDuplicateAssignment   = "duplicate_assignment"
	CodeRoundAlreadyOpen      = "round_already_open"
	CodeRoundClosed           = "round_closed"
	CodeAlreadySubmitted      = "already_submitted"
	CodeCannotRemoveCompleted = "cannot_remove_completed"
	CodeIncompleteRound       = "incomplete_round"
	CodeAlreadyResponded      = "already_responded"
)

// Error is the typed failure returned by every lifecycle operation
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	From    models.SubmissionStatus
	To      models.SubmissionStatus
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return string(e.Kind) + ": " + e.Code
	}
	return string(e.Kind)
}

// Is matches sentinels by kind, and by code when the sentinel carries one
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrTerminalState     = &Error{Kind: KindTerminalState}
	ErrForbidden         = &Error{Kind: KindForbidden}

	ErrDuplicateAssignment   = &Error{Kind: KindConflict, Code: CodeDuplicateAssignment}
	ErrRoundAlreadyOpen      = &Error{Kind: KindConflict, Code: CodeRoundAlreadyOpen}
	ErrRoundClosed           = &Error{Kind: KindConflict, Code: CodeRoundClosed}
	ErrAlreadySubmitted      = &Error{Kind: KindConflict, Code: CodeAlreadySubmitted}
	ErrCannotRemoveCompleted = &Error{Kind: KindConflict, Code: CodeCannotRemoveCompleted}
	ErrIncompleteRound       = &Error{Kind: KindConflict, Code: CodeIncompleteRound}
	ErrAlreadyResponded      = &Error{Kind: KindConflict, Code: CodeAlreadyResponded}
)

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFound(resource string, id uint) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", resource, id)}
}

func forbidden(operation string, actor models.Actor) error {
	return &Error{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("permission denied: %s %d may not perform %s", actor.Role, actor.ID, operation),
	}
}

func conflict(code, format string, args ...any) error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

func illegalTransition(from, to models.SubmissionStatus) error {
	return &Error{
		Kind:    KindIllegalTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
		From:    from,
		To:      to,
	}
}

func terminalState(from, to models.SubmissionStatus) error {
	return &Error{
		Kind:    KindTerminalState,
		Message: fmt.Sprintf("submission is %s; no further transitions are allowed", from),
		From:    from,
		To:      to,
	}
}
