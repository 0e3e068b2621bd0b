package shared

import (
	"sync"
	"time"
)

// Deferred holds at most one pending call on a [Clock].
//
// Scheduling replaces any call that has not fired yet, so a burst of Schedule calls collapses into the last one.
type Deferred struct {
	clock Clock
	mu    sync.Mutex
	timer Timer
	gen   uint64
}

// NewDeferred creates an empty slot driven by clock.
func NewDeferred(clock Clock) *Deferred {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Deferred{clock: clock}
}

// Schedule arranges for f to run after delay, replacing the pending call.
func (d *Deferred) Schedule(delay time.Duration, f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		f()
	})
}

// Cancel drops the pending call and reports whether there was one.
func (d *Deferred) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Pending reports whether a call is waiting to fire.
func (d *Deferred) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
