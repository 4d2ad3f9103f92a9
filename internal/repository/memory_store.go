package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"manuscript-review/internal/models"
)

// aggregate is everything owned by one submission
type aggregate struct {
	submission  models.Submission
	rounds      []models.ReviewRound
	assignments []models.ReviewerAssignment
	events      []models.LifecycleEvent
}

func (a *aggregate) clone() *aggregate {
	cp := &aggregate{
		submission:  cloneSubmission(a.submission),
		rounds:      make([]models.ReviewRound, len(a.rounds)),
		assignments: make([]models.ReviewerAssignment, len(a.assignments)),
		events:      append([]models.LifecycleEvent(nil), a.events...),
	}
	for i, r := range a.rounds {
		cp.rounds[i] = cloneRound(r)
	}
	for i, as := range a.assignments {
		cp.assignments[i] = cloneAssignment(as)
	}
	return cp
}

func cloneSubmission(s models.Submission) models.Submission {
	s.Keywords = append([]string{}, s.Keywords...)
	if s.IssueID != nil {
		issue := *s.IssueID
		s.IssueID = &issue
	}
	return s
}

func cloneRound(r models.ReviewRound) models.ReviewRound {
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		r.ClosedAt = &t
	}
	if r.ClosedBy != nil {
		by := *r.ClosedBy
		r.ClosedBy = &by
	}
	if r.Outcome != nil {
		o := *r.Outcome
		r.Outcome = &o
	}
	return r
}

func cloneAssignment(a models.ReviewerAssignment) models.ReviewerAssignment {
	if a.Comment != nil {
		c := *a.Comment
		a.Comment = &c
	}
	if a.CommentedAt != nil {
		t := *a.CommentedAt
		a.CommentedAt = &t
	}
	if a.Recommendation != nil {
		rec := *a.Recommendation
		a.Recommendation = &rec
	}
	return a
}

// MemoryStore is an in-process Store used for development and tests
type MemoryStore struct {
	mu          sync.RWMutex
	aggregates  map[uint]*aggregate
	roundOwner  map[uint]uint
	assignOwner map[uint]uint

	locksMu sync.Mutex
	locks   map[uint]*sync.Mutex

	submissionSeq atomic.Uint64
	roundSeq      atomic.Uint64
	assignmentSeq atomic.Uint64
	eventSeq      atomic.Uint64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aggregates:  make(map[uint]*aggregate),
		roundOwner:  make(map[uint]uint),
		assignOwner: make(map[uint]uint),
		locks:       make(map[uint]*sync.Mutex),
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) submissionLock(id uint) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// WithinSubmission runs fn against a staged copy of the submission and
// commits the copy when fn succeeds
func (s *MemoryStore) WithinSubmission(ctx context.Context, submissionID uint, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.submissionLock(submissionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	current, ok := s.aggregates[submissionID]
	var staged *aggregate
	if ok {
		staged = current.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	tx := &memoryTx{store: s, agg: staged}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(current, staged)
	return nil
}

// WithinNewSubmission runs fn against an empty aggregate that becomes
// visible only once fn succeeds
func (s *MemoryStore) WithinNewSubmission(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	staged := &aggregate{}
	tx := &memoryTx{store: s, agg: staged, fresh: true}
	if err := fn(tx); err != nil {
		return err
	}
	if staged.submission.ID == 0 {
		return nil
	}
	lock := s.submissionLock(staged.submission.ID)
	lock.Lock()
	defer lock.Unlock()
	s.commit(nil, staged)
	return nil
}

func (s *MemoryStore) commit(previous, staged *aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := staged.submission.ID
	if previous != nil {
		for _, a := range previous.assignments {
			delete(s.assignOwner, a.ID)
		}
	}
	for _, r := range staged.rounds {
		s.roundOwner[r.ID] = id
	}
	for _, a := range staged.assignments {
		s.assignOwner[a.ID] = id
	}
	s.aggregates[id] = staged
}

func (s *MemoryStore) view(id uint) (*aggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[id]
	if !ok {
		return nil, false
	}
	return agg.clone(), true
}

// GetSubmission retrieves a submission by ID
func (s *MemoryStore) GetSubmission(_ context.Context, id uint) (*models.Submission, error) {
	agg, ok := s.view(id)
	if !ok {
		return nil, nil
	}
	return &agg.submission, nil
}

func matchesFilter(agg *aggregate, filter models.SubmissionFilter) bool {
	sub := agg.submission
	if filter.Status != nil && sub.Status != *filter.Status {
		return false
	}
	if filter.JournalID != "" && sub.JournalID != filter.JournalID {
		return false
	}
	if filter.AuthorID != nil && sub.AuthorID != *filter.AuthorID {
		return false
	}
	if filter.ReviewerID != nil && !agg.hasReviewer(*filter.ReviewerID) {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(sub.Title), needle) &&
			!strings.Contains(strings.ToLower(sub.Abstract), needle) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) filtered(filter models.SubmissionFilter) []models.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []models.Submission{}
	for _, agg := range s.aggregates {
		if matchesFilter(agg, filter) {
			result = append(result, cloneSubmission(agg.submission))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.After(result[j].SubmittedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

// ListSubmissions returns one page of submissions, newest submission first
func (s *MemoryStore) ListSubmissions(_ context.Context, filter models.SubmissionFilter, limit, offset int) ([]models.Submission, error) {
	all := s.filtered(filter)
	if offset >= len(all) {
		return []models.Submission{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// CountSubmissions counts the submissions matching a filter
func (s *MemoryStore) CountSubmissions(_ context.Context, filter models.SubmissionFilter) (int, error) {
	return len(s.filtered(filter)), nil
}

func (s *MemoryStore) ownerOfRound(id uint) (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.roundOwner[id]
	return owner, ok
}

func (s *MemoryStore) ownerOfAssignment(id uint) (uint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.assignOwner[id]
	return owner, ok
}

// GetRound retrieves a review round by ID
func (s *MemoryStore) GetRound(_ context.Context, id uint) (*models.ReviewRound, error) {
	owner, ok := s.ownerOfRound(id)
	if !ok {
		return nil, nil
	}
	agg, ok := s.view(owner)
	if !ok {
		return nil, nil
	}
	return agg.round(id), nil
}

// GetOpenRound retrieves the open round of a submission, if any
func (s *MemoryStore) GetOpenRound(_ context.Context, submissionID uint) (*models.ReviewRound, error) {
	agg, ok := s.view(submissionID)
	if !ok {
		return nil, nil
	}
	return agg.openRound(), nil
}

// ListRounds returns the rounds of a submission by sequence
func (s *MemoryStore) ListRounds(_ context.Context, submissionID uint) ([]models.ReviewRound, error) {
	agg, ok := s.view(submissionID)
	if !ok {
		return []models.ReviewRound{}, nil
	}
	return agg.rounds, nil
}

// ListOpenRoundsBefore returns open rounds opened before the given time
func (s *MemoryStore) ListOpenRoundsBefore(_ context.Context, openedBefore time.Time) ([]models.ReviewRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rounds := []models.ReviewRound{}
	for _, agg := range s.aggregates {
		for _, r := range agg.rounds {
			if r.IsOpen() && r.OpenedAt.Before(openedBefore) {
				rounds = append(rounds, cloneRound(r))
			}
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].OpenedAt.Before(rounds[j].OpenedAt) })
	return rounds, nil
}

// GetAssignment retrieves an assignment by ID
func (s *MemoryStore) GetAssignment(_ context.Context, id uint) (*models.ReviewerAssignment, error) {
	owner, ok := s.ownerOfAssignment(id)
	if !ok {
		return nil, nil
	}
	agg, ok := s.view(owner)
	if !ok {
		return nil, nil
	}
	return agg.assignment(id), nil
}

// FindAssignment retrieves the assignment of a reviewer in a round
func (s *MemoryStore) FindAssignment(_ context.Context, roundID, reviewerID uint) (*models.ReviewerAssignment, error) {
	owner, ok := s.ownerOfRound(roundID)
	if !ok {
		return nil, nil
	}
	agg, ok := s.view(owner)
	if !ok {
		return nil, nil
	}
	return agg.findAssignment(roundID, reviewerID), nil
}

// ListAssignments returns the assignments of a round in insertion order
func (s *MemoryStore) ListAssignments(_ context.Context, roundID uint) ([]models.ReviewerAssignment, error) {
	owner, ok := s.ownerOfRound(roundID)
	if !ok {
		return []models.ReviewerAssignment{}, nil
	}
	agg, ok := s.view(owner)
	if !ok {
		return []models.ReviewerAssignment{}, nil
	}
	return agg.roundAssignments(roundID), nil
}

// HasAssignment checks whether a reviewer holds any assignment on a submission
func (s *MemoryStore) HasAssignment(_ context.Context, submissionID, reviewerID uint) (bool, error) {
	agg, ok := s.view(submissionID)
	if !ok {
		return false, nil
	}
	return agg.hasReviewer(reviewerID), nil
}

// ListEvents returns the events of a submission in append order
func (s *MemoryStore) ListEvents(_ context.Context, submissionID uint) ([]models.LifecycleEvent, error) {
	agg, ok := s.view(submissionID)
	if !ok {
		return []models.LifecycleEvent{}, nil
	}
	return agg.events, nil
}

// LastEvent returns the most recent event of a submission
func (s *MemoryStore) LastEvent(_ context.Context, submissionID uint) (*models.LifecycleEvent, error) {
	agg, ok := s.view(submissionID)
	if !ok {
		return nil, nil
	}
	return agg.lastEvent(), nil
}

func (a *aggregate) round(id uint) *models.ReviewRound {
	for i := range a.rounds {
		if a.rounds[i].ID == id {
			r := cloneRound(a.rounds[i])
			return &r
		}
	}
	return nil
}

func (a *aggregate) openRound() *models.ReviewRound {
	for i := range a.rounds {
		if a.rounds[i].IsOpen() {
			r := cloneRound(a.rounds[i])
			return &r
		}
	}
	return nil
}

func (a *aggregate) assignment(id uint) *models.ReviewerAssignment {
	for i := range a.assignments {
		if a.assignments[i].ID == id {
			as := cloneAssignment(a.assignments[i])
			return &as
		}
	}
	return nil
}

func (a *aggregate) findAssignment(roundID, reviewerID uint) *models.ReviewerAssignment {
	for i := range a.assignments {
		if a.assignments[i].RoundID == roundID && a.assignments[i].ReviewerID == reviewerID {
			as := cloneAssignment(a.assignments[i])
			return &as
		}
	}
	return nil
}

func (a *aggregate) roundAssignments(roundID uint) []models.ReviewerAssignment {
	result := []models.ReviewerAssignment{}
	for _, as := range a.assignments {
		if as.RoundID == roundID {
			result = append(result, cloneAssignment(as))
		}
	}
	return result
}

func (a *aggregate) hasReviewer(reviewerID uint) bool {
	for _, as := range a.assignments {
		if as.ReviewerID == reviewerID {
			return true
		}
	}
	return false
}

func (a *aggregate) lastEvent() *models.LifecycleEvent {
	if len(a.events) == 0 {
		return nil
	}
	e := a.events[len(a.events)-1]
	return &e
}

// memoryTx is a unit of work over a staged aggregate
type memoryTx struct {
	store *MemoryStore
	agg   *aggregate
	fresh bool
}

func (tx *memoryTx) owns(submissionID uint) bool {
	return tx.agg.submission.ID != 0 && tx.agg.submission.ID == submissionID
}

func (tx *memoryTx) GetSubmission(ctx context.Context, id uint) (*models.Submission, error) {
	if tx.owns(id) {
		s := cloneSubmission(tx.agg.submission)
		return &s, nil
	}
	return tx.store.GetSubmission(ctx, id)
}

func (tx *memoryTx) ListSubmissions(ctx context.Context, filter models.SubmissionFilter, limit, offset int) ([]models.Submission, error) {
	return tx.store.ListSubmissions(ctx, filter, limit, offset)
}

func (tx *memoryTx) CountSubmissions(ctx context.Context, filter models.SubmissionFilter) (int, error) {
	return tx.store.CountSubmissions(ctx, filter)
}

func (tx *memoryTx) GetRound(ctx context.Context, id uint) (*models.ReviewRound, error) {
	if r := tx.agg.round(id); r != nil {
		return r, nil
	}
	r, err := tx.store.GetRound(ctx, id)
	if err != nil || r == nil || tx.owns(r.SubmissionID) {
		return nil, err
	}
	return r, nil
}

func (tx *memoryTx) GetOpenRound(ctx context.Context, submissionID uint) (*models.ReviewRound, error) {
	if tx.owns(submissionID) {
		return tx.agg.openRound(), nil
	}
	return tx.store.GetOpenRound(ctx, submissionID)
}

func (tx *memoryTx) ListRounds(ctx context.Context, submissionID uint) ([]models.ReviewRound, error) {
	if tx.owns(submissionID) {
		rounds := make([]models.ReviewRound, len(tx.agg.rounds))
		for i, r := range tx.agg.rounds {
			rounds[i] = cloneRound(r)
		}
		return rounds, nil
	}
	return tx.store.ListRounds(ctx, submissionID)
}

func (tx *memoryTx) ListOpenRoundsBefore(ctx context.Context, openedBefore time.Time) ([]models.ReviewRound, error) {
	return tx.store.ListOpenRoundsBefore(ctx, openedBefore)
}

func (tx *memoryTx) GetAssignment(ctx context.Context, id uint) (*models.ReviewerAssignment, error) {
	if a := tx.agg.assignment(id); a != nil {
		return a, nil
	}
	a, err := tx.store.GetAssignment(ctx, id)
	if err != nil || a == nil || tx.owns(a.SubmissionID) {
		return nil, err
	}
	return a, nil
}

func (tx *memoryTx) FindAssignment(ctx context.Context, roundID, reviewerID uint) (*models.ReviewerAssignment, error) {
	if tx.agg.round(roundID) != nil {
		return tx.agg.findAssignment(roundID, reviewerID), nil
	}
	return tx.store.FindAssignment(ctx, roundID, reviewerID)
}

func (tx *memoryTx) ListAssignments(ctx context.Context, roundID uint) ([]models.ReviewerAssignment, error) {
	if tx.agg.round(roundID) != nil {
		return tx.agg.roundAssignments(roundID), nil
	}
	return tx.store.ListAssignments(ctx, roundID)
}

func (tx *memoryTx) HasAssignment(ctx context.Context, submissionID, reviewerID uint) (bool, error) {
	if tx.owns(submissionID) {
		return tx.agg.hasReviewer(reviewerID), nil
	}
	return tx.store.HasAssignment(ctx, submissionID, reviewerID)
}

func (tx *memoryTx) ListEvents(ctx context.Context, submissionID uint) ([]models.LifecycleEvent, error) {
	if tx.owns(submissionID) {
		return append([]models.LifecycleEvent{}, tx.agg.events...), nil
	}
	return tx.store.ListEvents(ctx, submissionID)
}

func (tx *memoryTx) LastEvent(ctx context.Context, submissionID uint) (*models.LifecycleEvent, error) {
	if tx.owns(submissionID) {
		return tx.agg.lastEvent(), nil
	}
	return tx.store.LastEvent(ctx, submissionID)
}

func (tx *memoryTx) CreateSubmission(_ context.Context, s *models.Submission) error {
	if !tx.fresh || tx.agg.submission.ID != 0 {
		return ErrUniqueViolation
	}
	s.ID = uint(tx.store.submissionSeq.Add(1))
	tx.agg.submission = cloneSubmission(*s)
	return nil
}

func (tx *memoryTx) UpdateSubmission(_ context.Context, s *models.Submission) error {
	if !tx.owns(s.ID) {
		return ErrNotFound
	}
	tx.agg.submission.ManuscriptRef = s.ManuscriptRef
	tx.agg.submission.Status = s.Status
	tx.agg.submission.SubmittedAt = s.SubmittedAt
	tx.agg.submission.UpdatedAt = s.UpdatedAt
	return nil
}

func (tx *memoryTx) CreateRound(_ context.Context, r *models.ReviewRound) error {
	if !tx.owns(r.SubmissionID) {
		return ErrNotFound
	}
	for _, existing := range tx.agg.rounds {
		if existing.Sequence == r.Sequence || (existing.IsOpen() && r.IsOpen()) {
			return ErrUniqueViolation
		}
	}
	r.ID = uint(tx.store.roundSeq.Add(1))
	tx.agg.rounds = append(tx.agg.rounds, cloneRound(*r))
	return nil
}

func (tx *memoryTx) UpdateRound(_ context.Context, r *models.ReviewRound) error {
	for i := range tx.agg.rounds {
		if tx.agg.rounds[i].ID == r.ID {
			updated := tx.agg.rounds[i]
			updated.ClosedAt = r.ClosedAt
			updated.ClosedBy = r.ClosedBy
			updated.Forced = r.Forced
			updated.Outcome = r.Outcome
			tx.agg.rounds[i] = cloneRound(updated)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) CreateAssignment(_ context.Context, a *models.ReviewerAssignment) error {
	if tx.agg.round(a.RoundID) == nil {
		return ErrNotFound
	}
	if tx.agg.findAssignment(a.RoundID, a.ReviewerID) != nil {
		return ErrUniqueViolation
	}
	a.ID = uint(tx.store.assignmentSeq.Add(1))
	tx.agg.assignments = append(tx.agg.assignments, cloneAssignment(*a))
	return nil
}

func (tx *memoryTx) UpdateAssignment(_ context.Context, a *models.ReviewerAssignment) error {
	for i := range tx.agg.assignments {
		if tx.agg.assignments[i].ID == a.ID {
			updated := tx.agg.assignments[i]
			updated.Comment = a.Comment
			updated.CommentedAt = a.CommentedAt
			updated.Recommendation = a.Recommendation
			tx.agg.assignments[i] = cloneAssignment(updated)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) DeleteAssignment(_ context.Context, id uint) error {
	for i := range tx.agg.assignments {
		if tx.agg.assignments[i].ID == id {
			if tx.agg.assignments[i].Completed() {
				return ErrCompleted
			}
			tx.agg.assignments = append(tx.agg.assignments[:i], tx.agg.assignments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) CreateEvent(_ context.Context, e *models.LifecycleEvent) error {
	if !tx.owns(e.SubmissionID) {
		return ErrNotFound
	}
	e.ID = uint(tx.store.eventSeq.Add(1))
	tx.agg.events = append(tx.agg.events, *e)
	return nil
}
