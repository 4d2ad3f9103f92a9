package handlers

import (
	"net/http"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

// RoundHandler serves the review round tracker and assignment ledger
type RoundHandler struct {
	rounds      *service.RoundService
	assignments *service.AssignmentService
}

// NewRoundHandler creates a new round handler
func NewRoundHandler(rounds *service.RoundService, assignments *service.AssignmentService) *RoundHandler {
	return &RoundHandler{rounds: rounds, assignments: assignments}
}

// CloseRoundRequest is the body of a round close
type CloseRoundRequest struct {
	Forced   bool                     `json:"forced"`
	Decision *models.SubmissionStatus `json:"decision,omitempty"`
	Note     string                   `json:"note"`
}

// AssignRequest names the reviewer to add to a round
type AssignRequest struct {
	ReviewerID uint `json:"reviewer_id"`
}

// ResponseRequest is a reviewer's recommendation
type ResponseRequest struct {
	Recommendation models.Recommendation `json:"recommendation"`
	Comment        string                `json:"comment"`
}

// Open starts the next review round
// @Summary Open review round
// @Tags Rounds
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 201 {object} models.ReviewRound
// @Failure 409 {object} ErrorResponse "A round is already open"
// @Router /submissions/{id}/rounds [post]
func (h *RoundHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	round, err := h.rounds.Open(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, round)
}

// List returns the rounds of a submission
// @Summary List review rounds
// @Tags Rounds
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 200 {array} models.ReviewRound
// @Router /submissions/{id}/rounds [get]
func (h *RoundHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rounds, err := h.rounds.ListBySubmission(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, rounds)
}

// Close ends a review round
// @Summary Close review round
// @Tags Rounds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Param request body CloseRoundRequest false "Close options"
// @Success 200 {object} models.ReviewRound
// @Failure 409 {object} ErrorResponse "Incomplete or already closed"
// @Router /rounds/{id}/close [post]
func (h *RoundHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req CloseRoundRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	round, err := h.rounds.Close(r.Context(), actor, id, service.CloseOptions{
		Forced:   req.Forced,
		Decision: req.Decision,
		Note:     req.Note,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, round)
}

// Outcome aggregates the recommendations of a round
// @Summary Round outcome
// @Tags Rounds
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Success 200 {object} models.RoundOutcome
// @Router /rounds/{id}/outcome [get]
func (h *RoundHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	outcome, err := h.rounds.Outcome(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, outcome)
}

// Assign adds a reviewer to a round
// @Summary Assign reviewer
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Param request body AssignRequest true "Reviewer"
// @Success 201 {object} models.ReviewerAssignment
// @Failure 409 {object} ErrorResponse "Duplicate assignment or closed round"
// @Router /rounds/{id}/assignments [post]
func (h *RoundHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	assignment, err := h.assignments.Assign(r.Context(), actor, id, req.ReviewerID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, assignment)
}

// ListAssignments returns the assignments of a round
// @Summary List assignments
// @Description Reviewers only see their own assignment.
// @Tags Assignments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Round ID"
// @Success 200 {array} models.ReviewerAssignment
// @Router /rounds/{id}/assignments [get]
func (h *RoundHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := h.assignments.ListByRound(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, assignments)
}

// Respond records the assigned reviewer's recommendation
// @Summary Record recommendation
// @Tags Assignments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Assignment ID"
// @Param request body ResponseRequest true "Recommendation"
// @Success 200 {object} models.ReviewerAssignment
// @Failure 409 {object} ErrorResponse "Already submitted or round closed"
// @Router /assignments/{id}/response [post]
func (h *RoundHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ResponseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	assignment, err := h.assignments.RecordResponse(r.Context(), actor, id, req.Recommendation, req.Comment)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, assignment)
}

// Remove withdraws an assignment without a recommendation
// @Summary Remove assignment
// @Tags Assignments
// @Security BearerAuth
// @Param id path int true "Assignment ID"
// @Success 204
// @Failure 409 {object} ErrorResponse "Assignment already completed"
// @Router /assignments/{id} [delete]
func (h *RoundHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.assignments.Remove(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
