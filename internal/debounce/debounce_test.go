package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDoCoalescesBursts(t *testing.T) {
	d := New(30 * time.Millisecond)
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		d.Do(func() { calls.Add(1) })
	}

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single invocation after burst, got %d", got)
	}
}

func TestDoRunsLatestFunction(t *testing.T) {
	d := New(20 * time.Millisecond)
	var got atomic.Int32

	d.Do(func() { got.Store(1) })
	d.Do(func() { got.Store(2) })

	time.Sleep(80 * time.Millisecond)
	if got.Load() != 2 {
		t.Fatalf("expected last scheduled fn to win, got %d", got.Load())
	}
}

func TestStopCancelsPending(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls atomic.Int32

	d.Do(func() { calls.Add(1) })
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no invocation after stop, got %d", calls.Load())
	}
}

func TestFlushRunsImmediatelyAndCancelsPending(t *testing.T) {
	d := New(50 * time.Millisecond)
	var pending, flushed atomic.Int32

	d.Do(func() { pending.Add(1) })
	d.Flush(func() { flushed.Add(1) })

	if flushed.Load() != 1 {
		t.Fatalf("expected flush to run synchronously")
	}
	time.Sleep(120 * time.Millisecond)
	if pending.Load() != 0 {
		t.Fatalf("expected pending fn to be cancelled by flush, got %d", pending.Load())
	}
}
