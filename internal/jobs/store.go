// Package jobs persists submitted verification jobs and polls them to
// completion.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verimatch/verimatch/internal/config"
	"github.com/verimatch/verimatch/pkg/client"
)

// ErrNotFound is returned when a job id is not in the store
var ErrNotFound = errors.New("job not found")

// Job is a locally tracked verification job. The store owns this record;
// the remote service owns the authoritative contract/error outcome, which
// the tracker copies in exactly once on completion.
type Job struct {
	ID          string                `json:"id"`
	Method      string                `json:"method"`
	SubmittedAt time.Time             `json:"submittedAt"`
	StartedAt   time.Time             `json:"startedAt"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
	Contract    *client.ContractMatch `json:"contract,omitempty"`
	Error       *client.JobError      `json:"error,omitempty"`
}

// Pending reports whether the job has not yet reached a terminal state.
func (j *Job) Pending() bool { return j.FinishedAt == nil }

// Store is the persisted job list. Subscribe delivers a signal whenever the
// stored set changes, so a tracker in another goroutine (or another process
// watching the same database) can refresh its view.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error

	// List returns all jobs, most recently submitted first.
	List(ctx context.Context) ([]Job, error)

	// Clear deletes every job, terminal or not.
	Clear(ctx context.Context) error

	Subscribe() (ch <-chan struct{}, cancel func())
	Close() error
}

// New creates a job store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// notifier implements Subscribe for all store backends.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

func (n *notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan struct{})
	}
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// notify signals every subscriber without blocking; a subscriber that has
// not drained its previous signal is already going to refresh.
func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
