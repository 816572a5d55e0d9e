package jobs

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store without persistence. Used by tests and by
// one-shot submissions run with --no-store.
type MemoryStore struct {
	notifier
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	s.jobs[job.ID] = *job
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) Update(_ context.Context, job *Job) error {
	s.mu.Lock()
	if _, ok := s.jobs[job.ID]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.jobs[job.ID] = *job
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, job)
	}
	sort.Slice(list, func(a, b int) bool {
		if !list[a].SubmittedAt.Equal(list[b].SubmittedAt) {
			return list[a].SubmittedAt.After(list[b].SubmittedAt)
		}
		return list[a].ID < list[b].ID
	})
	return list, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.jobs = make(map[string]Job)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
