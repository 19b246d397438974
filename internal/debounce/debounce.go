// Package debounce implements trailing-edge debouncing of named actions:
// repeated schedules under the same key within the delay window collapse
// into a single execution of the most recent action.
package debounce

import (
	"sync"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/clock"
)

// Debouncer coalesces scheduled actions by key. It is safe for concurrent
// use. Actions run on the clock's timer goroutine, so they should hand off
// long work instead of blocking.
type Debouncer struct {
	clk clock.Clock

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

type entry struct {
	timer *clock.Timer
}

// New returns a Debouncer driven by the given clock.
func New(clk clock.Clock) *Debouncer {
	return &Debouncer{clk: clk, pending: make(map[string]*entry)}
}

// Schedule arranges for fn to run after delay. A previous pending action
// under the same key is cancelled first, so only the last schedule within
// the window executes. Scheduling on a stopped Debouncer is a no-op.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if delay <= 0 {
		// Keep the firing path uniform: a non-positive delay would run fn
		// inline while the lock is held.
		delay = time.Nanosecond
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}

	e := &entry{}
	d.pending[key] = e
	e.timer = d.clk.AfterFunc(delay, func() {
		d.mu.Lock()
		cur, ok := d.pending[key]
		// A stopped timer can still fire if it was already in flight;
		// entry identity tells us whether this timer is the live one.
		if !ok || cur != e || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending action for key, if any. It reports whether an
// action was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether an action is scheduled under key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending action and rejects further schedules.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
}
