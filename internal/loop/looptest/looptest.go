// Package looptest provides a deterministic Scheduler for tests. Time only moves
// when the test calls Advance.
package looptest

import (
	"sort"
	"time"

	"github.com/ehrlich-b/chatsync/internal/loop"
)

// Scheduler is not safe for concurrent use; drive it from the test goroutine.
type Scheduler struct {
	now     time.Time
	seq     int
	timers  []*Timer
	queue   []func()
	running bool
}

var _ loop.Scheduler = (*Scheduler)(nil)

func New() *Scheduler {
	return &Scheduler{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Post runs fn right away unless another posted closure is running, in which case
// fn runs after it, like the real loop.
func (s *Scheduler) Post(fn func()) {
	s.queue = append(s.queue, fn)
	if s.running {
		return
	}
	s.running = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		next()
	}
	s.running = false
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	s.seq++
	t := &Timer{at: s.now.Add(d), fn: fn, seq: s.seq}
	s.timers = append(s.timers, t)
	return t
}

// Go runs fn inline so off-loop work completes deterministically.
func (s *Scheduler) Go(fn func()) { fn() }

func (s *Scheduler) Now() time.Time { return s.now }

// Advance moves the clock forward, firing due timers in order.
func (s *Scheduler) Advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.now = next.at
		next.fired = true
		s.Post(next.fn)
	}
	s.now = target
}

// Active counts timers that are neither stopped nor fired.
func (s *Scheduler) Active() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (s *Scheduler) nextDue(target time.Time) *Timer {
	var due []*Timer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

type Timer struct {
	at      time.Time
	fn      func()
	seq     int
	stopped bool
	fired   bool
}

func (t *Timer) Stop() { t.stopped = true }
