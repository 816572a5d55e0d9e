package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verimatch/verimatch/internal/metrics"
	"github.com/verimatch/verimatch/internal/scheduler"
	"github.com/verimatch/verimatch/pkg/client"
)

// DefaultPollInterval matches the service's recommended polling cadence.
const DefaultPollInterval = 15 * time.Second

// StatusAPI is the slice of the service client the tracker needs.
type StatusAPI interface {
	VerificationJob(ctx context.Context, verificationID string) (*client.JobStatus, error)
}

// Tracker polls every pending stored job on a fixed interval until each
// reaches a terminal state. There is deliberately no backoff and no retry
// cap: a failed poll leaves the job pending and the next tick tries again.
type Tracker struct {
	store    Store
	api      StatusAPI
	sched    scheduler.Scheduler
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	stop func()
}

// NewTracker creates a job tracker. A nil scheduler means wall-clock ticks.
func NewTracker(store Store, api StatusAPI, sched scheduler.Scheduler, interval time.Duration, logger *slog.Logger) *Tracker {
	if sched == nil {
		sched = scheduler.Ticker{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{
		store:    store,
		api:      api,
		sched:    sched,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins interval polling. Calling Start on a running tracker is a
// no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = t.sched.Schedule(t.interval, func() { t.Tick(ctx) })
}

// Stop cancels the polling interval. A later Start resumes with a fresh
// schedule.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Tick polls every pending job once. Polls run concurrently and each job's
// record is updated as its poll completes; jobs are independent so the
// completion order between them does not matter.
func (t *Tracker) Tick(ctx context.Context) {
	list, err := t.store.List(ctx)
	if err != nil {
		t.logger.Error("listing jobs for poll", "error", err)
		return
	}

	var wg sync.WaitGroup
	for i := range list {
		job := list[i]
		if !job.Pending() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.poll(ctx, job)
		}()
	}
	wg.Wait()
}

// PendingCount reports how many stored jobs still need polling.
func (t *Tracker) PendingCount(ctx context.Context) (int, error) {
	list, err := t.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range list {
		if list[i].Pending() {
			n++
		}
	}
	return n, nil
}

func (t *Tracker) poll(ctx context.Context, job Job) {
	status, err := t.api.VerificationJob(ctx, job.ID)
	if err != nil {
		// The job stays pending; the next tick retries.
		metrics.RecordJobPoll("error")
		t.logger.Warn("polling job failed", "id", job.ID, "error", err)
		return
	}

	if !status.IsJobCompleted {
		metrics.RecordJobPoll("pending")
		return
	}
	metrics.RecordJobPoll("completed")

	// Re-read under the store to keep the completion transition idempotent:
	// a job that finished between List and here is not touched again.
	current, err := t.store.Get(ctx, job.ID)
	if err != nil {
		t.logger.Warn("reading job after poll", "id", job.ID, "error", err)
		return
	}
	if !current.Pending() {
		return
	}

	finished := t.now()
	current.FinishedAt = &finished
	outcome := "match"
	if status.Error != nil {
		current.Error = status.Error
		outcome = "failed"
	} else if status.Contract != nil {
		mergeContract(current, status.Contract)
	}
	metrics.RecordJobCompleted(outcome)

	if err := t.store.Update(ctx, current); err != nil {
		t.logger.Warn("updating completed job", "id", job.ID, "error", err)
		return
	}
	t.logger.Info("job completed", "id", job.ID, "outcome", outcome)
}

// mergeContract fills in the match outcome while keeping the chain id and
// address recorded at submission time.
func mergeContract(job *Job, match *client.ContractMatch) {
	if job.Contract == nil {
		job.Contract = &client.ContractMatch{}
	}
	if match.ChainID != "" {
		job.Contract.ChainID = match.ChainID
	}
	if match.Address != "" {
		job.Contract.Address = match.Address
	}
	job.Contract.RuntimeMatch = match.RuntimeMatch
	job.Contract.CreationMatch = match.CreationMatch
	job.Contract.VerifiedAt = match.VerifiedAt
	job.Contract.MatchID = match.MatchID
}
