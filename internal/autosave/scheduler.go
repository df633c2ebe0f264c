// Package autosave coalesces rapid worksheet edits into a single background
// draft save. One scheduler exists per worksheet session; scheduling again
// cancels the previous timer (debounce, not throttle), so at most one timer
// is ever live and the save never runs concurrently with itself.
package autosave

import (
	"context"
	"sync"
	"time"
)

// State of the scheduled save task.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateInFlight:
		return "in-flight"
	}
	return "idle"
}

// Defaults: a normal edit waits out a short inactivity window; the immediate
// path is used right after a receipt upload completes, where a faster
// confirmation is desirable.
const (
	DefaultDelay          = 1100 * time.Millisecond
	DefaultImmediateDelay = 200 * time.Millisecond
)

// Config wires the scheduler to its session.
type Config struct {
	Delay          time.Duration // zero means DefaultDelay
	ImmediateDelay time.Duration // zero means DefaultImmediateDelay

	// Validate is the silent draft validation run when the timer fires. If it
	// returns false the save is skipped and the last-saved marker stays
	// untouched.
	Validate func() bool
	// Save performs the draft save with the session's current snapshot.
	Save func(ctx context.Context) error
	// OnSaved receives the save completion time (the "last saved at" marker).
	OnSaved func(at time.Time)
	// OnError receives save failures. Optional.
	OnError func(err error)
}

// Scheduler is the debounced, cancellable save trigger.
type Scheduler struct {
	mu       sync.Mutex
	cfg      Config
	timer    *time.Timer
	state    State
	disabled bool

	// A Schedule that arrives while a save is in flight re-arms afterwards
	// instead of stacking a second run.
	rearm          bool
	rearmImmediate bool
}

// New returns a scheduler in the idle state.
func New(cfg Config) *Scheduler {
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.ImmediateDelay == 0 {
		cfg.ImmediateDelay = DefaultImmediateDelay
	}
	return &Scheduler{cfg: cfg}
}

// State reports the current task state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Schedule resets the pending timer. With immediate set the shortened delay
// is used. Calls while disabled are dropped; calls while a save is in flight
// re-arm the timer once the save finishes.
func (s *Scheduler) Schedule(immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return
	}
	if s.state == StateInFlight {
		s.rearm = true
		s.rearmImmediate = s.rearmImmediate || immediate
		return
	}

	s.stopTimerLocked()
	delay := s.cfg.Delay
	if immediate {
		delay = s.cfg.ImmediateDelay
	}
	s.state = StateScheduled
	s.timer = time.AfterFunc(delay, s.fire)
}

// Cancel drops any pending timer and re-arm request. An already in-flight
// save is not interrupted.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.rearm = false
	s.rearmImmediate = false
	if s.state == StateScheduled {
		s.state = StateIdle
	}
}

// Disable cancels any pending timer and blocks further scheduling, used
// while a destructive operation (submit, delete) is in flight on the same
// batch. Enable lifts the block.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.rearm = false
	s.rearmImmediate = false
	if s.state == StateScheduled {
		s.state = StateIdle
	}
	s.disabled = true
}

// Enable allows scheduling again after Disable.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = false
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.disabled || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.state = StateInFlight
	s.timer = nil
	s.mu.Unlock()

	if s.cfg.Validate != nil && !s.cfg.Validate() {
		s.finish()
		return
	}

	err := s.cfg.Save(context.Background())
	if err != nil {
		if s.cfg.OnError != nil {
			s.cfg.OnError(err)
		}
	} else if s.cfg.OnSaved != nil {
		s.cfg.OnSaved(time.Now())
	}
	s.finish()
}

// finish returns to idle, honoring a re-arm request that arrived during the
// save.
func (s *Scheduler) finish() {
	s.mu.Lock()
	s.state = StateIdle
	rearm, immediate := s.rearm, s.rearmImmediate
	s.rearm = false
	s.rearmImmediate = false
	disabled := s.disabled
	s.mu.Unlock()

	if rearm && !disabled {
		s.Schedule(immediate)
	}
}
