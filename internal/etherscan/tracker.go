package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/verimatch/verimatch/internal/metrics"
	"github.com/verimatch/verimatch/internal/scheduler"
)

// DefaultImportPollInterval is the cadence for third-party verifier checks.
const DefaultImportPollInterval = 3 * time.Second

// State is the derived status of one external verifier import.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateError   State = "error"
	StateUnknown State = "unknown"
)

// Record describes one third-party verifier import triggered by a
// submission. A record without a status URL cannot be polled.
type Record struct {
	Key            string
	StatusURL      string
	VerificationID string
	ExplorerURL    string
	Error          string

	// RequiresAuth marks verifiers whose status endpoint needs a
	// caller-supplied API key appended as a query parameter.
	RequiresAuth bool
}

// Derived is the computed state for one record. It can be recomputed from
// the record and the last poll response at any time.
type Derived struct {
	State   State
	Message string
}

// terminal reports whether the state needs no further polling. A pending
// state is never terminal, no matter what its message says.
func (d Derived) terminal() bool {
	return d.State == StateSuccess || d.State == StateError
}

// Tracker polls external verifier status endpoints until every record is
// terminal. Each key is polled independently; resolved keys are excluded
// from later ticks.
type Tracker struct {
	httpClient *http.Client
	sched      scheduler.Scheduler
	interval   time.Duration
	credential func(key string) string

	mu      sync.Mutex
	records []Record
	states  map[string]Derived
	updates chan map[string]Derived
	stop    func()
}

// NewTracker creates an import tracker. credential returns the API key for
// a verifier key, or "" when none is configured.
func NewTracker(httpClient *http.Client, sched scheduler.Scheduler, interval time.Duration, credential func(key string) string) *Tracker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if sched == nil {
		sched = scheduler.Ticker{}
	}
	if interval <= 0 {
		interval = DefaultImportPollInterval
	}
	if credential == nil {
		credential = func(string) string { return "" }
	}
	return &Tracker{
		httpClient: httpClient,
		sched:      sched,
		interval:   interval,
		credential: credential,
	}
}

// Track starts tracking a record set, replacing any previous one. The
// returned channel delivers one complete state snapshot per tick and is
// closed once every record is terminal or unpollable.
func (t *Tracker) Track(ctx context.Context, records []Record) <-chan map[string]Derived {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	previous := t.updates
	t.updates = nil
	t.mu.Unlock()

	// The previous schedule must drain outside the lock: an in-flight tick
	// needs the lock to finish, and the stop handle waits for it.
	if stop != nil {
		stop()
	}
	if previous != nil {
		close(previous)
	}

	t.mu.Lock()
	t.records = records
	t.states = make(map[string]Derived, len(records))
	for _, rec := range records {
		t.states[rec.Key] = deriveWithoutNetwork(rec, t.credential(rec.Key))
	}
	t.updates = make(chan map[string]Derived, 1)
	updates := t.updates

	t.publishLocked()

	if t.pollableLocked() == 0 {
		close(t.updates)
		t.updates = nil
		t.mu.Unlock()
		return updates
	}

	t.stop = t.sched.Schedule(t.interval, func() { t.tick(ctx) })
	t.mu.Unlock()
	return updates
}

// Stop cancels polling and closes the current update channel. A later
// Track call restarts with a fresh record set.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	if t.updates != nil {
		close(t.updates)
		t.updates = nil
	}
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// States returns a copy of the current snapshot.
func (t *Tracker) States() map[string]Derived {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copySnapshot(t.states)
}

func (t *Tracker) tick(ctx context.Context) {
	t.mu.Lock()
	var toPoll []Record
	for _, rec := range t.records {
		if rec.StatusURL == "" {
			continue
		}
		if !t.states[rec.Key].terminal() {
			toPoll = append(toPoll, rec)
		}
	}
	t.mu.Unlock()

	if len(toPoll) == 0 {
		t.finish()
		return
	}

	// Poll every unresolved key, then merge all results into a single
	// snapshot so observers never see a half-updated tick.
	results := make([]Derived, len(toPoll))
	var wg sync.WaitGroup
	for i, rec := range toPoll {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = t.check(ctx, rec)
			metrics.RecordImportCheck(rec.Key, string(results[i].State))
		}()
	}
	wg.Wait()

	t.mu.Lock()
	for i, rec := range toPoll {
		t.states[rec.Key] = results[i]
	}
	remaining := t.pollableLocked()
	t.publishLocked()
	t.mu.Unlock()

	if remaining == 0 {
		t.finish()
	}
}

// finish stops the schedule and closes the update channel.
func (t *Tracker) finish() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	if t.updates != nil {
		close(t.updates)
		t.updates = nil
	}
	t.mu.Unlock()
	if stop != nil {
		// finish runs on the tick goroutine itself, and the ticker's stop
		// handle waits for the in-flight run to return. Calling it here
		// would wait on ourselves, so it runs on its own goroutine; it
		// completes as soon as this tick returns.
		go stop()
	}
}

func (t *Tracker) pollableLocked() int {
	n := 0
	for _, rec := range t.records {
		if rec.StatusURL != "" && !t.states[rec.Key].terminal() {
			n++
		}
	}
	return n
}

func (t *Tracker) publishLocked() {
	if t.updates == nil {
		return
	}
	select {
	case t.updates <- copySnapshot(t.states):
	default:
		select {
		case <-t.updates:
		default:
		}
		t.updates <- copySnapshot(t.states)
	}
}

// check performs one status request for a record.
func (t *Tracker) check(ctx context.Context, rec Record) Derived {
	statusURL := rec.StatusURL
	if rec.RequiresAuth {
		key := t.credential(rec.Key)
		if key == "" {
			return Derived{State: StateError, Message: fmt.Sprintf("no API key configured for %s; add one with 'verimatch auth login'", rec.Key)}
		}
		sep := "?"
		if strings.Contains(statusURL, "?") {
			sep = "&"
		}
		statusURL += sep + "apikey=" + key
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return Derived{State: StateError, Message: err.Error()}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Transport failures keep the key unknown and re-polled.
		return Derived{State: StateUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Derived{State: StateUnknown, Message: fmt.Sprintf("unparseable status response: %v", err)}
	}

	return classify(body.Status, body.Message, body.Result)
}

// classify maps an explorer status response to a derived state. A result
// mentioning "pending" is not terminal regardless of the status flag.
func classify(status, message, result string) Derived {
	msg := result
	if msg == "" {
		msg = message
	}
	if strings.Contains(strings.ToLower(result), "pending") {
		return Derived{State: StatePending, Message: msg}
	}
	if status == "1" {
		return Derived{State: StateSuccess, Message: msg}
	}
	return Derived{State: StateError, Message: msg}
}

// deriveWithoutNetwork computes the states that need no status request.
func deriveWithoutNetwork(rec Record, credential string) Derived {
	switch {
	case rec.Error != "":
		return Derived{State: StateError, Message: rec.Error}
	case rec.StatusURL == "" && rec.VerificationID != "":
		return Derived{State: StatePending, Message: "import submitted, id " + rec.VerificationID}
	case rec.StatusURL == "":
		return Derived{State: StateUnknown, Message: "no status endpoint reported"}
	case rec.RequiresAuth && credential == "":
		return Derived{State: StateError, Message: fmt.Sprintf("no API key configured for %s; add one with 'verimatch auth login'", rec.Key)}
	default:
		return Derived{State: StatePending, Message: "waiting for first status check"}
	}
}

func copySnapshot(states map[string]Derived) map[string]Derived {
	snapshot := make(map[string]Derived, len(states))
	for k, v := range states {
		snapshot[k] = v
	}
	return snapshot
}
