package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, cancel
}

func TestPostRunsInOrder(t *testing.T) {
	l, _ := start(t)
	var got []int
	for i := 0; i < 5; i++ {
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestAfterFuncFiresOnLoop(t *testing.T) {
	l, _ := start(t)
	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestStoppedTimerNeverFires(t *testing.T) {
	l, _ := start(t)
	var fired atomic.Bool
	tm := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	l.Post(tm.Stop)
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.False(t, fired.Load())
}

func TestCallAfterStop(t *testing.T) {
	l, cancel := start(t)
	cancel()
	require.Eventually(t, func() bool {
		return l.Call(context.Background(), func() {}) == ErrStopped
	}, time.Second, 5*time.Millisecond)

	// Post on a stopped loop must not block.
	l.Post(func() {})
}

func TestGoRunsOffLoop(t *testing.T) {
	l, _ := start(t)
	result := make(chan int, 1)
	l.Go(func() {
		l.Post(func() { result <- 42 })
	})
	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("result never posted")
	}
}

func TestHandlersRepostingUnderFloodNeverWedge(t *testing.T) {
	l, _ := start(t)
	const n = 1000
	var ran, reposted atomic.Int64

	go func() {
		for i := 0; i < n; i++ {
			l.Post(func() {
				time.Sleep(time.Millisecond)
				ran.Add(1)
				l.Post(func() { reposted.Add(1) })
			})
		}
	}()

	require.Eventually(t, func() bool {
		return reposted.Load() == n
	}, 20*time.Second, 10*time.Millisecond, "ran %d of %d", ran.Load(), n)
}

func TestPostFromLoopBeyondInitialCapacity(t *testing.T) {
	l := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	require.NoError(t, l.Call(context.Background(), func() {
		for i := 0; i < 100; i++ {
			l.Post(func() { got = append(got, i) })
		}
	}))
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Len(t, got, 100)
	assert.Equal(t, 99, got[99])
}

func TestCloseInsideHandlerWhileProducerFloods(t *testing.T) {
	l, _ := start(t)
	stop := make(chan struct{})
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for {
			select {
			case <-stop:
				return
			default:
				l.Post(func() {})
			}
		}
	}()

	// A handler that waits on the producer, the way a transport Close waits on
	// its reader goroutine.
	require.NoError(t, l.Call(context.Background(), func() {
		close(stop)
		<-producerDone
	}))
}
