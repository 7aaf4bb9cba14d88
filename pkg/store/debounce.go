package store

import (
	"sync"
	"time"
)

// debouncer collapses bursts of filesystem events into a single refresh.
type debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay}
}

// trigger schedules fn after the delay, resetting any pending schedule.
func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// stop cancels any pending trigger.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
