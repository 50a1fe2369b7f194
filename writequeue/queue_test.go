package writequeue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"duplexrpc/executor"
	"duplexrpc/transport"
)

// fakeTransport records every write it receives and tracks the maximum
// number of writes ever in flight at once, so tests can assert the
// "transport never sees two overlapping writes" invariant directly.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	inFlight int32
	maxInFlight int32
	failNext bool
}

func (f *fakeTransport) AsyncWrite(frame []byte, completion transport.WriteCompletion) {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, n) {
			break
		}
	}

	f.mu.Lock()
	f.frames = append(f.frames, frame)
	fail := f.failNext
	f.mu.Unlock()

	go func() {
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&f.inFlight, -1)
		if fail {
			completion(errors.New("boom"))
			return
		}
		completion(nil)
	}()
}

func (f *fakeTransport) GetExecutor() executor.Executor { return executor.Goroutine{} }

func TestEnqueueDeliversInOrder(t *testing.T) {
	ft := &fakeTransport{}
	q := New(ft, nil)

	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Enqueue([]byte("c"))

	deadline := time.After(time.Second)
	for {
		ft.mu.Lock()
		n := len(ft.frames)
		ft.mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 3 writes, got %d", n)
		case <-time.After(time.Millisecond):
		}
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if string(ft.frames[i]) != w {
			t.Fatalf("frame %d: got %q, want %q", i, ft.frames[i], w)
		}
	}
}

func TestAtMostOneInFlightUnderConcurrency(t *testing.T) {
	ft := &fakeTransport{}
	q := New(ft, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue([]byte{byte(i)})
		}(i)
	}
	wg.Wait()

	deadline := time.After(time.Second)
	for {
		ft.mu.Lock()
		n := len(ft.frames)
		ft.mu.Unlock()
		if n == 20 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 20 writes, got %d", n)
		case <-time.After(time.Millisecond):
		}
	}

	if max := atomic.LoadInt32(&ft.maxInFlight); max > 1 {
		t.Fatalf("expect at most 1 write in flight at a time, observed %d", max)
	}
}

func TestReserveGrowsCapacityWithoutAffectingLen(t *testing.T) {
	ft := &fakeTransport{}
	q := New(ft, nil)

	q.Reserve(16)
	if got := q.Cap(); got < 16 {
		t.Fatalf("expect capacity >= 16, got %d", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expect Reserve not to change Len, got %d", q.Len())
	}

	q.Enqueue([]byte("a"))
	if q.Len() != 1 {
		t.Fatalf("expect Len 1 after one Enqueue, got %d", q.Len())
	}
}

func TestWriteFailureInvokesOnError(t *testing.T) {
	ft := &fakeTransport{failNext: true}
	errCh := make(chan error, 1)
	q := New(ft, func(err error) { errCh <- err })

	q.Enqueue([]byte("x"))

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expect non-nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("onError never fired")
	}
}
