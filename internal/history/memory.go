package history

import (
	"context"
	"sync"

	"github.com/callrunner/callrunner/internal/runner"
)

const defaultMemoryLimit = 100

// MemoryStore keeps the most recent runs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	limit int
	runs  []*runner.Result // oldest first
}

// NewMemoryStore creates a store holding at most limit runs.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Record(_ context.Context, r *runner.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, r)
	if over := len(m.runs) - m.limit; over > 0 {
		m.runs = append([]*runner.Result(nil), m.runs[over:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = listLimit(limit)
	out := make([]Summary, 0, min(limit, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, Summarize(m.runs[i]))
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, runID string) (*runner.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Close(context.Context) error { return nil }
