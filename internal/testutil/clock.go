package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/lorenzobigazzi0/app/internal/clock"
)

// ManualScheduler is a clock.Scheduler whose time only moves when the test
// calls Advance. Due callbacks run synchronously inside Advance, in deadline
// order, so timer-driven code becomes deterministic.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal lock held and may schedule further timers.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int64
	timers []*ManualTimer
}

// ManualTimer is a timer created by ManualScheduler.
type ManualTimer struct {
	s       *ManualScheduler
	at      time.Time
	seq     int64
	f       func()
	stopped bool
	fired   bool
}

// NewManualScheduler creates a scheduler frozen at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the simulated current time.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc registers f to run once the simulated time reaches now+d.
// A non-positive d runs f on the next Advance (including Advance(0)).
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) clock.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &ManualTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Stop cancels the timer.
func (t *ManualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, firing every timer that comes due,
// including timers scheduled by callbacks within the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// nextDue pops the earliest live timer due at or before target and moves
// the clock to its deadline.
func (s *ManualScheduler) nextDue(target time.Time) *ManualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.SliceStable(s.timers, func(i, j int) bool {
		if !s.timers[i].at.Equal(s.timers[j].at) {
			return s.timers[i].at.Before(s.timers[j].at)
		}
		return s.timers[i].seq < s.timers[j].seq
	})

	if len(s.timers) == 0 || s.timers[0].at.After(target) {
		return nil
	}
	t := s.timers[0]
	t.fired = true
	if t.at.After(s.now) {
		s.now = t.at
	}
	return t
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// PendingWithin counts live timers due within d of the current time.
func (s *ManualScheduler) PendingWithin(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.now.Add(d)
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(limit) {
			n++
		}
	}
	return n
}

// Set jumps the clock to t without firing timers. Used to model wall-clock
// reads that are not timer driven.
func (s *ManualScheduler) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}
