package handlers

import (
	"net/http"

	"manuscript-review/internal/models"
	"manuscript-review/internal/service"
)

// SubmissionHandler serves the submission store and decision endpoints
type SubmissionHandler struct {
	submissions *service.SubmissionService
	engine      *service.DecisionEngine
	audit       *service.AuditService
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submissions *service.SubmissionService, engine *service.DecisionEngine, audit *service.AuditService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, engine: engine, audit: audit}
}

// DecisionRequest is the body of an editorial decision
type DecisionRequest struct {
	Status models.SubmissionStatus `json:"status"`
	Note   string                  `json:"note"`
}

// NoteRequest carries an optional free-text note
type NoteRequest struct {
	Note string `json:"note"`
}

// ManuscriptRequest replaces the manuscript reference
type ManuscriptRequest struct {
	ManuscriptRef string `json:"manuscript_ref"`
}

// Create submits a new manuscript
// @Summary Create submission
// @Description Submit a manuscript. The acting author becomes its owner.
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateSubmissionInput true "Submission"
// @Success 201 {object} models.Submission
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /submissions [post]
func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in service.CreateSubmissionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := h.submissions.Create(r.Context(), actor, in)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, sub)
}

// List returns a page of visible submissions
// @Summary List submissions
// @Description Newest first. Authors see their own submissions, reviewers the ones they are assigned to.
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param journal_id query string false "Journal filter"
// @Param author_id query int false "Author filter"
// @Param search query string false "Free text over title and abstract"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Success 200 {object} models.SubmissionPage
// @Failure 400 {object} ErrorResponse
// @Router /submissions [get]
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	page, pageSize := parsePaginationParams(r)
	result, err := h.submissions.List(r.Context(), actor, parseSubmissionFilter(r), page, pageSize)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, result)
}

// Get returns one submission
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 200 {object} models.Submission
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.Get(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, sub)
}

// Finalize turns a draft into a submitted manuscript
// @Summary Finalize draft
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 200 {object} models.Submission
// @Failure 422 {object} ErrorResponse
// @Router /submissions/{id}/finalize [post]
func (h *SubmissionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sub, err := h.submissions.Finalize(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, sub)
}

// UpdateManuscript replaces the manuscript reference before review begins
// @Summary Update manuscript reference
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Param request body ManuscriptRequest true "New reference"
// @Success 200 {object} models.Submission
// @Failure 400 {object} ErrorResponse
// @Router /submissions/{id}/manuscript [put]
func (h *SubmissionHandler) UpdateManuscript(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ManuscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissions.UpdateManuscript(r.Context(), actor, id, req.ManuscriptRef)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, sub)
}

// Decide records an editorial decision
// @Summary Editorial decision
// @Description Moves the submission to the requested status. An open round is force-closed.
// @Tags Decisions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Param request body DecisionRequest true "Decision"
// @Success 200 {object} models.Submission
// @Failure 422 {object} ErrorResponse "Illegal transition or terminal state"
// @Router /submissions/{id}/decision [post]
func (h *SubmissionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.engine.Decide(r.Context(), actor, id, req.Status, req.Note)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, sub)
}

// Resubmit sends a revised manuscript back under review
// @Summary Resubmit
// @Tags Decisions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Param request body NoteRequest false "Note"
// @Success 200 {object} models.Submission
// @Failure 422 {object} ErrorResponse
// @Router /submissions/{id}/resubmit [post]
func (h *SubmissionHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req NoteRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.engine.Resubmit(r.Context(), actor, id, req.Note)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, sub)
}

// Events returns the lifecycle event log of a submission
// @Summary Lifecycle events
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 200 {array} models.LifecycleEvent
// @Router /submissions/{id}/events [get]
func (h *SubmissionHandler) Events(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.audit.Events(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, events)
}

// VerifyEvents re-hashes the event log of a submission
// @Summary Verify event chain
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param id path int true "Submission ID"
// @Success 200 {object} models.ChainVerification
// @Router /submissions/{id}/events/verify [get]
func (h *SubmissionHandler) VerifyEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.audit.VerifyChain(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, result)
}

// Transitions publishes the state machine
// @Summary Workflow transitions
// @Tags Decisions
// @Produce json
// @Success 200 {array} service.Transition
// @Router /workflow/transitions [get]
func (h *SubmissionHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, h.engine.Transitions())
}
