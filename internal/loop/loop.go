// Package loop runs every session handler on one goroutine. Network goroutines and
// timers never touch session state directly; they post closures here.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("loop stopped")

// Timer is a cancelable pending callback.
type Timer interface {
	Stop()
}

// Scheduler is what components need from the loop.
type Scheduler interface {
	// Post queues fn to run on the loop goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loop after d unless the timer is stopped first.
	AfterFunc(d time.Duration, fn func()) Timer
	// Go runs blocking work (HTTP calls) off the loop. Results must come back via Post.
	Go(fn func())
	Now() time.Time
}

// Loop is the production Scheduler. Its queue is unbounded, so Post never blocks,
// whether it is called from a network goroutine or from a handler on the loop.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// New returns a loop whose queue starts with room for size closures.
func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		queue: make([]func(), 0, size),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Run processes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
}

// Post queues fn. It is dropped once the loop has stopped.
func (l *Loop) Post(fn func()) {
	l.post(fn)
}

func (l *Loop) post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() { fn(); close(finished) }) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}
	t.t = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have raced with the fire; the flag is only read here, on the loop.
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

func (l *Loop) Go(fn func()) { go fn() }

func (l *Loop) Now() time.Time { return time.Now() }

type timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (t *timer) Stop() {
	t.stopped.Store(true)
	t.t.Stop()
}
