// Package sched runs the software side of the board: the backup loop and
// any consumers of the shadow region, all on one goroutine, one tick at a
// time. Nothing is preempted; a task runs to completion within its tick.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var ErrStopped = errors.New("sched: scheduler stopped")

type Task interface {
	Name() string
	Tick() error
}

type taskFunc struct {
	name string
	fn   func() error
}

func (t *taskFunc) Name() string { return t.name }
func (t *taskFunc) Tick() error  { return t.fn() }

func TaskFunc(name string, fn func() error) Task {
	return &taskFunc{name: name, fn: fn}
}

type entry struct {
	task   Task
	paused bool
	errs   int
}

type job struct {
	fn   func() error
	done chan error
}

type Scheduler struct {
	period time.Duration

	// held for a whole step or Do job; tasks never run concurrently.
	stepMu sync.Mutex

	mu      sync.Mutex
	tasks   []*entry
	stopped bool
	ticks   uint64
	pending []job

	// signals Run that pending has work
	wake chan struct{}
}

func New(period time.Duration) *Scheduler {
	return &Scheduler{
		period: period,
		wake:   make(chan struct{}, 1),
	}
}

func (s *Scheduler) Period() time.Duration { return s.period }

// Add registers a task; tasks tick in the order they were added.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.tasks {
		if e.task.Name() == t.Name() {
			panic("sched: Add called twice for task " + t.Name())
		}
	}
	s.tasks = append(s.tasks, &entry{task: t})
}

func (s *Scheduler) find(name string) (*entry, error) {
	for _, e := range s.tasks {
		if e.task.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("sched: no task %q", name)
}

// Pause skips the named task on subsequent ticks. Its own state (a backup
// cursor, say) is untouched.
func (s *Scheduler) Pause(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.find(name)
	if err != nil {
		return err
	}
	e.paused = true
	return nil
}

func (s *Scheduler) Resume(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.find(name)
	if err != nil {
		return err
	}
	e.paused = false
	return nil
}

func (s *Scheduler) Paused(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.find(name)
	return err == nil && e.paused
}

// Errors returns how many ticks of the named task have failed.
func (s *Scheduler) Errors(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, err := s.find(name); err == nil {
		return e.errs
	}
	return 0
}

func (s *Scheduler) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Do runs fn between two ticks and returns its error. No task runs while fn
// does. fn runs on the goroutine that takes it next: Run's loop, or a
// caller of Step. After Run has returned, Do fails with ErrStopped.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.pending = append(s.pending, j)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) takeJobs() []job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := s.pending
	s.pending = nil
	return jobs
}

// runJobs runs every pending job; stepMu must be held.
func (s *Scheduler) runJobs() {
	for _, j := range s.takeJobs() {
		j.done <- j.fn()
	}
}

// Step runs pending Do calls and then one tick of every active task. It may
// be called from any goroutine, also while Run is stepping.
func (s *Scheduler) Step() {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.runJobs()

	s.mu.Lock()
	active := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		if !e.paused {
			active = append(active, e)
		}
	}
	s.ticks++
	s.mu.Unlock()

	for _, e := range active {
		if err := e.task.Tick(); err != nil {
			s.mu.Lock()
			e.errs++
			s.mu.Unlock()
			log.Printf("sched: %s: %v\n", e.task.Name(), err)
		}
	}
}

// Run steps every period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.period)
	defer t.Stop()
	defer func() {
		s.mu.Lock()
		s.stopped = true
		jobs := s.pending
		s.pending = nil
		s.mu.Unlock()
		// fail whoever is still waiting:
		for _, j := range jobs {
			j.done <- ErrStopped
		}
	}()

	log.Printf("sched: running every %v\n", s.period)
	for {
		select {
		case <-ctx.Done():
			log.Printf("sched: stopped after %d ticks\n", s.Ticks())
			return ctx.Err()
		case <-s.wake:
			s.stepMu.Lock()
			s.runJobs()
			s.stepMu.Unlock()
		case <-t.C:
			s.Step()
		}
	}
}
