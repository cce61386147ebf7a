// Package loop provides a single-consumer task queue. Every task posted to a
// Loop runs on the loop's goroutine, one at a time and in posting order, so
// state touched only from tasks needs no locking.
package loop

import (
	"context"
	"errors"
	"sync"
)

// DefaultBuffer is the task queue capacity used when New is given zero.
const DefaultBuffer = 256

// ErrStopped is returned by Call once the loop no longer accepts tasks.
var ErrStopped = errors.New("loop stopped")

// Loop is a serialized execution context. It is safe for concurrent use.
type Loop struct {
	tasks    chan func()
	stopped  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a loop whose queue holds up to buffer pending tasks.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Loop{
		tasks:   make(chan func(), buffer),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run executes tasks until ctx is canceled or Stop is called. Tasks still
// queued at that point are discarded.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.stopped:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn. It blocks while the queue is full and reports false if
// the loop stopped before fn was accepted.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be called
// from a task running on the same loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop makes the loop exit after the task it is running, if any.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
