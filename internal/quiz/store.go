package quiz

import (
	"context"
	"slices"
	"sync"
	"time"
)

const maxHistory = 100

// Response is a stored, graded submission.
type Response struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	LectureID   string    `json:"lecture_id"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Results     []Result  `json:"results"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Store persists graded responses.
type Store interface {
	SaveResponse(ctx context.Context, r Response) error
	// ListResponses returns at most limit responses, newest first.
	ListResponses(ctx context.Context, studentID string, limit int) ([]Response, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string][]Response // student -> responses in submit order
}

// NewMemoryStore creates a new in-memory response store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{responses: make(map[string][]Response)}
}

func (s *MemoryStore) SaveResponse(_ context.Context, r Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Results = slices.Clone(r.Results)
	s.responses[r.StudentID] = append(s.responses[r.StudentID], r)
	return nil
}

func (s *MemoryStore) ListResponses(_ context.Context, studentID string, limit int) ([]Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.responses[studentID]
	out := make([]Response, 0, min(len(all), limit))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
