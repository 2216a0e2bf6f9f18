package scanner

import (
	"sync"
	"time"
)

// Scheduler runs named one-shot timers whose callbacks are handed to a
// dispatch function (the controller's event loop). Scheduling a name again
// replaces the pending timer. A timer that already fired but was cancelled or
// replaced before its callback ran is dropped.
type Scheduler struct {
	dispatch func(func())

	mu     sync.Mutex
	timers map[string]*scheduled
	seq    uint64
	closed bool
}

type scheduled struct {
	timer *time.Timer
	seq   uint64
}

// NewScheduler creates a scheduler that dispatches fired callbacks via dispatch.
func NewScheduler(dispatch func(func())) *Scheduler {
	return &Scheduler{
		dispatch: dispatch,
		timers:   make(map[string]*scheduled),
	}
}

// Schedule runs fn after d under name. It is a no-op after Close.
func (s *Scheduler) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if prev, ok := s.timers[name]; ok {
		prev.timer.Stop()
	}

	s.seq++
	seq := s.seq
	entry := &scheduled{seq: seq}
	entry.timer = time.AfterFunc(d, func() {
		s.dispatch(func() {
			if s.claim(name, seq) {
				fn()
			}
		})
	})
	s.timers[name] = entry
}

// claim removes the entry if it is still the current one for name.
func (s *Scheduler) claim(name string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	entry, ok := s.timers[name]
	if !ok || entry.seq != seq {
		return false
	}
	delete(s.timers, name)
	return true
}

// Cancel stops the named timer.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.timers[name]; ok {
		entry.timer.Stop()
		delete(s.timers, name)
	}
}

// CancelAll stops every pending timer.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() {
	for name, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, name)
	}
}

// Close cancels every timer and rejects further scheduling. Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
	s.closed = true
}

// Pending returns the number of timers not yet run or cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
