package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"manuscript-review/internal/middleware"
	"manuscript-review/internal/models"
)

const (
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgInvalidRequestBody = "Invalid request body"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// requireActor returns the authenticated actor or writes a 401
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
	}
	return actor, ok
}

// pathID parses a numeric path wildcard, writing a 400 when it is malformed
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// decodeJSON reads a JSON body into dst, writing a 400 on malformed input
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := ErrMsgInvalidRequestBody
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			msg = "Request body too large"
		} else if !errors.Is(err, io.EOF) {
			msg = fmt.Sprintf("%s: %v", ErrMsgInvalidRequestBody, err)
		}
		respondWithError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// parsePaginationParams reads page and page_size; zero means default
func parsePaginationParams(r *http.Request) (page, pageSize int) {
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && s > 0 {
		pageSize = s
	}
	return page, pageSize
}

// parseSubmissionFilter reads the listing filter from the query string
func parseSubmissionFilter(r *http.Request) models.SubmissionFilter {
	q := r.URL.Query()
	filter := models.SubmissionFilter{
		JournalID: strings.TrimSpace(q.Get("journal_id")),
		Search:    q.Get("search"),
	}
	if status := q.Get("status"); status != "" {
		s := models.SubmissionStatus(status)
		filter.Status = &s
	}
	if author := q.Get("author_id"); author != "" {
		if id, err := strconv.ParseUint(author, 10, 32); err == nil {
			authorID := uint(id)
			filter.AuthorID = &authorID
		}
	}
	return filter
}
