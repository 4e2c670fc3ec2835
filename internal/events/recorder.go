package events

import (
	"context"
	"sync"

	"github.com/p-n-ai/medq/internal/content"
)

// Recorder keeps every change in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	changes []content.Change
}

func NewRecorder() *Recorder {
	return &Recorder{changes: []content.Change{}}
}

func (r *Recorder) Notify(_ context.Context, c content.Change) error {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Changes() []content.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]content.Change{}, r.changes...)
}
