package store

import (
	"sync"
	"time"
)

// Debouncer coalesces writes into a single pending slot. Each Schedule
// replaces the pending value and restarts the timer, so only the last value
// scheduled within the delay window reaches write.
type Debouncer[T any] struct {
	delay time.Duration
	write func(T)

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	pending    T
	hasPending bool
	closed     bool

	// writeMu serializes write so a timer firing and Flush never overlap.
	writeMu sync.Mutex
}

// NewDebouncer returns a debouncer that calls write delay after the last
// Schedule.
func NewDebouncer[T any](delay time.Duration, write func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, write: write}
}

// Schedule sets the pending value and restarts the timer.
func (d *Debouncer[T]) Schedule(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.pending = v
	d.hasPending = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.hasPending {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.write(v)
}

// take must be called with mu held.
func (d *Debouncer[T]) take() T {
	v := d.pending
	var zero T
	d.pending = zero
	d.hasPending = false
	return v
}

// Pending reports whether a write is waiting for its timer.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending
}

// Flush writes the pending value immediately, if any.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	if !d.hasPending {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.write(v)
}

// Cancel drops the pending value without writing it and waits for a write
// already in progress to finish.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.take()
	d.mu.Unlock()

	d.writeMu.Lock()
	d.writeMu.Unlock()
}

// Close flushes the pending value and rejects further schedules.
func (d *Debouncer[T]) Close() {
	d.Flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
