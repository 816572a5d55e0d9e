// Package scheduler abstracts interval-based task scheduling so polling
// loops can run against a virtual clock in tests.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler runs a task repeatedly at a fixed interval until the returned
// stop function is called. The task is never run concurrently with itself.
type Scheduler interface {
	Schedule(interval time.Duration, task func()) (stop func())
}

// Ticker is the wall-clock Scheduler.
type Ticker struct{}

// Schedule runs task every interval until stop is called. Stop waits for an
// in-flight task run to finish.
func (Ticker) Schedule(interval time.Duration, task func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				task()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
			<-finished
		})
	}
}

// Manual is a Scheduler driven by explicit Tick calls, for deterministic
// tests. Stopping a schedule removes its task from future ticks.
type Manual struct {
	mu    sync.Mutex
	next  int
	tasks map[int]func()
}

// NewManual creates a Manual scheduler.
func NewManual() *Manual {
	return &Manual{tasks: make(map[int]func())}
}

// Schedule registers a task; the interval is ignored.
func (m *Manual) Schedule(_ time.Duration, task func()) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.tasks[id] = task
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	}
}

// Tick runs every registered task once, synchronously.
func (m *Manual) Tick() {
	m.mu.Lock()
	tasks := make([]func(), 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	m.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

// Active reports how many schedules are currently registered.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
