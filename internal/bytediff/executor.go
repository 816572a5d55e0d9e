package bytediff

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Request asks for one diff computation. RequestID correlates the response
// when computations run off the caller's goroutine.
type Request struct {
	A           string
	B           string
	Granularity Granularity
	RequestID   string
}

// Response carries the result of one Request.
type Response struct {
	RequestID string
	Result    *Result
	Err       error
}

// Executor runs diff computations off the caller's goroutine. Bytecode
// strings reach tens of kilobytes and the character diff is quadratic-ish
// in the worst case, so interactive callers must not run it inline.
type Executor interface {
	Submit(req Request)
	Responses() <-chan Response
	Close()
}

// LocalExecutor is the in-process Executor: a single worker goroutine
// draining a request queue.
type LocalExecutor struct {
	requests  chan Request
	responses chan Response
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewLocalExecutor creates and starts a local executor.
func NewLocalExecutor() *LocalExecutor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &LocalExecutor{
		requests:  make(chan Request, 16),
		responses: make(chan Response, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

func (e *LocalExecutor) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			result, err := Diff(req.A, req.B, req.Granularity)
			select {
			case e.responses <- Response{RequestID: req.RequestID, Result: result, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Submit queues a request. Submitting on a closed executor is a no-op.
func (e *LocalExecutor) Submit(req Request) {
	select {
	case e.requests <- req:
	case <-e.done:
	}
}

// Responses returns the response stream.
func (e *LocalExecutor) Responses() <-chan Response {
	return e.responses
}

// Close terminates the worker; an in-flight computation's response is
// discarded.
func (e *LocalExecutor) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done
	})
}

// Session issues requests against an executor and filters its responses so
// only the most recent request's outcome is delivered. Responses from
// superseded requests are dropped, which covers inputs changing while a
// computation is in flight.
type Session struct {
	exec    Executor
	results chan Response
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	latest string
}

// NewSession creates a session over exec and starts its response filter.
func NewSession(exec Executor) *Session {
	s := &Session{
		exec:    exec,
		results: make(chan Response, 1),
		done:    make(chan struct{}),
	}
	go s.filter()
	return s
}

func (s *Session) filter() {
	for {
		select {
		case <-s.done:
			return
		case resp, ok := <-s.exec.Responses():
			if !ok {
				return
			}
			s.mu.Lock()
			latest := s.latest
			s.mu.Unlock()
			if resp.RequestID != latest {
				continue // stale computation
			}
			select {
			case s.results <- resp:
			default:
				// Replace an unconsumed older result.
				select {
				case <-s.results:
				default:
				}
				s.results <- resp
			}
		}
	}
}

// Request submits a new computation, superseding any in-flight one, and
// returns its id.
func (s *Session) Request(a, b string, granularity Granularity) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.latest = id
	s.mu.Unlock()
	s.exec.Submit(Request{A: a, B: b, Granularity: granularity, RequestID: id})
	return id
}

// Results delivers responses for the most recent request only.
func (s *Session) Results() <-chan Response {
	return s.results
}

// Close stops the session's filter. The executor is left running; sessions
// share it.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}
