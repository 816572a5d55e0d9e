package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verimatch/verimatch/internal/scheduler"
	"github.com/verimatch/verimatch/pkg/client"
)

// mockStatusAPI implements StatusAPI for testing
type mockStatusAPI struct {
	mu        sync.Mutex
	responses map[string]*client.JobStatus
	errs      map[string]error
	calls     map[string]int
}

func newMockStatusAPI() *mockStatusAPI {
	return &mockStatusAPI{
		responses: make(map[string]*client.JobStatus),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (m *mockStatusAPI) VerificationJob(_ context.Context, id string) (*client.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[id]++
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	if resp := m.responses[id]; resp != nil {
		return resp, nil
	}
	return &client.JobStatus{VerificationID: id}, nil
}

func (m *mockStatusAPI) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func pendingJob(t *testing.T, store Store, id string) *Job {
	t.Helper()
	job := &Job{
		ID:          id,
		Method:      "std-json",
		SubmittedAt: time.Now(),
		StartedAt:   time.Now(),
		Contract:    &client.ContractMatch{ChainID: "1", Address: "0xabc"},
	}
	require.NoError(t, store.Put(context.Background(), job))
	return job
}

func TestTracker_CompletesJobWithMatch(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-1")
	api.responses["job-1"] = &client.JobStatus{
		IsJobCompleted: true,
		Contract:       &client.ContractMatch{RuntimeMatch: "perfect", VerifiedAt: "2026-08-30T00:00:00Z"},
	}

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, job.Pending())
	require.NotNil(t, job.Contract)
	assert.Equal(t, "perfect", job.Contract.RuntimeMatch)
	// Chain id and address recorded at submission survive the merge.
	assert.Equal(t, "1", job.Contract.ChainID)
	assert.Equal(t, "0xabc", job.Contract.Address)
	assert.Nil(t, job.Error)
}

func TestTracker_CompletesJobWithError(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-2")
	api.responses["job-2"] = &client.JobStatus{
		IsJobCompleted: true,
		Error:          &client.JobError{CustomCode: "no_match", Message: "bytecode mismatch"},
	}

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()

	job, err := store.Get(context.Background(), "job-2")
	require.NoError(t, err)
	assert.False(t, job.Pending())
	require.NotNil(t, job.Error)
	assert.Equal(t, "no_match", job.Error.CustomCode)
}

func TestTracker_TerminalJobsNotPolledAgain(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-3")
	api.responses["job-3"] = &client.JobStatus{IsJobCompleted: true, Contract: &client.ContractMatch{RuntimeMatch: "match"}}

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()
	first, err := store.Get(context.Background(), "job-3")
	require.NoError(t, err)
	require.False(t, first.Pending())

	sched.Tick()
	sched.Tick()

	// Completion is a one-way transition; no further network calls.
	assert.Equal(t, 1, api.callCount("job-3"))
	second, err := store.Get(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, first.FinishedAt, second.FinishedAt)
}

func TestTracker_PollFailureLeavesJobPending(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-4")
	api.errs["job-4"] = errors.New("connection refused")

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()
	sched.Tick()

	// No backoff, no cap: every tick retries.
	assert.Equal(t, 2, api.callCount("job-4"))
	job, err := store.Get(context.Background(), "job-4")
	require.NoError(t, err)
	assert.True(t, job.Pending())
}

func TestTracker_IncompleteResponseLeavesJobPending(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-5")
	api.responses["job-5"] = &client.JobStatus{IsJobCompleted: false}

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()

	job, err := store.Get(context.Background(), "job-5")
	require.NoError(t, err)
	assert.True(t, job.Pending())
}

func TestTracker_StopCancelsSchedule(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	tracker.Start(context.Background())
	assert.Equal(t, 1, sched.Active())
	tracker.Stop()
	assert.Equal(t, 0, sched.Active())

	// Restart creates a fresh schedule.
	tracker.Start(context.Background())
	assert.Equal(t, 1, sched.Active())
	tracker.Stop()
}

func TestTracker_ClearAllowedWhilePending(t *testing.T) {
	store := NewMemoryStore()
	api := newMockStatusAPI()
	sched := scheduler.NewManual()
	tracker := NewTracker(store, api, sched, time.Second, discardLogger())

	pendingJob(t, store, "job-6")
	require.NoError(t, store.Clear(context.Background()))

	tracker.Start(context.Background())
	defer tracker.Stop()
	sched.Tick()

	assert.Equal(t, 0, api.callCount("job-6"))
	n, err := tracker.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
