// Package debounce coalesces bursts of calls into a single trailing
// invocation after a quiet window.
package debounce

import (
	"sync"
	"time"
)

type Debouncer struct {
	wait time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func New(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Do schedules fn to run after the quiet window. A call made while a
// previous fn is still pending replaces it, so only the last fn of a
// burst runs. fn executes on a timer goroutine.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, fn)
}

// Flush cancels any pending invocation and runs fn immediately.
func (d *Debouncer) Flush(fn func()) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	fn()
}

// Stop cancels any pending invocation without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
