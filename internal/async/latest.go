// Package async provides latest-wins task slots for the interactive filter
// session: relation lookups superseded by newer keystrokes and debounced
// validation calls.
package async

import (
	"context"
	"sync"
	"time"
)

// Latest tracks the most recent task of a kind. Beginning a task cancels
// the previous one, and results carry a generation number that callers
// check with IsCurrent or apply through Deliver.
type Latest struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts a new generation, cancelling the context of the previous one.
func (l *Latest) Begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	l.cancel = cancel
	return ctx, l.gen
}

// IsCurrent reports whether gen is still the latest generation.
func (l *Latest) IsCurrent(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.gen
}

// Deliver runs fn if gen is still the latest generation and reports whether
// it ran. Begin and Stop wait for fn to return, so a result can never be
// applied after a newer task has started. fn must not call back into l.
func (l *Latest) Deliver(gen uint64, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return false
	}
	fn()
	return true
}

// Stop cancels the current task and makes every outstanding generation stale.
func (l *Latest) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}

// Debouncer runs work once its trigger has been quiet for a fixed interval.
// A new trigger restarts the timer and cancels work already running; only
// the result of the most recent trigger is delivered.
type Debouncer[T any] struct {
	delay  time.Duration
	latest Latest

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiet interval.
func NewDebouncer[T any](delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{delay: delay}
}

// Trigger schedules work. deliver runs on the timer goroutine with the
// result unless a later Trigger or Stop superseded it. A Trigger issued
// while deliver runs waits for it to return.
func (d *Debouncer[T]) Trigger(ctx context.Context, work func(context.Context) (T, error), deliver func(T, error)) {
	taskCtx, gen := d.latest.Begin(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		if !d.latest.IsCurrent(gen) || taskCtx.Err() != nil {
			return
		}
		res, err := work(taskCtx)
		d.latest.Deliver(gen, func() { deliver(res, err) })
	})
}

// Stop cancels the pending timer and any running work.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.latest.Stop()
}
