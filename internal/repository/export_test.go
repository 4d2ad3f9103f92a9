package repository

import "manuscript-review/internal/models"

// TamperEvent overwrites a stored event in place
func (s *MemoryStore) TamperEvent(submissionID, eventID uint, mutate func(e *models.LifecycleEvent)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggregates[submissionID]
	if !ok {
		return false
	}
	for i := range agg.events {
		if agg.events[i].ID == eventID {
			mutate(&agg.events[i])
			return true
		}
	}
	return false
}
