// Package pending correlates in-flight recognition jobs with the handlers
// waiting for their results.
//
// A Table is not safe for concurrent use. Every method, including the timer
// callback OnTimeoutFired, must run on the same serialized execution context.
package pending

import (
	"time"

	"go.uber.org/atomic"

	"github.com/seantiz/scribe/internal/model"
)

// Scheduler arms and disarms one timeout per job ID. When an armed timeout
// expires the scheduler's owner calls Table.OnTimeoutFired with the ID.
type Scheduler interface {
	Schedule(id int64, d time.Duration)
	Cancel(id int64)
}

// Handler receives the events for one registration. OnUpdate is called for
// every pending update and for the final result; OnError is called at most
// once and ends the registration.
type Handler struct {
	OnUpdate func(model.TranscriptionUpdate)
	OnError  func(error)
}

func (h Handler) update(u model.TranscriptionUpdate) {
	if h.OnUpdate != nil {
		h.OnUpdate(u)
	}
}

func (h Handler) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Outcome is the terminal state an entry left the table in.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeFailed
	OutcomeTimedOut
	OutcomeSuperseded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Option configures a Table.
type Option func(*Table)

// WithClosing shares the process shutdown flag with the table. While it is
// set, timer firings and explicit failures are ignored.
func WithClosing(closing *atomic.Bool) Option {
	return func(t *Table) { t.closing = closing }
}

// WithObserver registers fn to be told about every terminal transition.
func WithObserver(fn func(Outcome)) Option {
	return func(t *Table) { t.observe = fn }
}

// Table maps live job IDs to their handlers.
type Table struct {
	entries map[int64]Handler
	sched   Scheduler
	timeout time.Duration
	closing *atomic.Bool
	observe func(Outcome)
}

// New creates a table that arms a timeout of the given duration for every
// registration.
func New(sched Scheduler, timeout time.Duration, opts ...Option) *Table {
	t := &Table{
		entries: make(map[int64]Handler),
		sched:   sched,
		timeout: timeout,
		closing: atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds a handler for id. A live registration for the same id is
// failed with ErrDuplicateIdentifier first. The timeout runs from now and is
// never extended. id must be nonzero.
func (t *Table) Register(id int64, h Handler) {
	if id == 0 {
		panic("pending: register with zero job id")
	}

	// Loop in case the superseded handler registers id again itself.
	for {
		old, ok := t.take(id)
		if !ok {
			break
		}
		t.sched.Cancel(id)
		t.resolved(OutcomeSuperseded)
		old.fail(ErrDuplicateIdentifier)
	}

	t.entries[id] = h
	t.sched.Schedule(id, t.timeout)
}

// DeliverUpdate routes u to the handler registered for u.JobID. Updates for
// unknown IDs are dropped; they are late arrivals after a timeout or failure.
// A pending update leaves the entry and its timeout in place.
func (t *Table) DeliverUpdate(u model.TranscriptionUpdate) {
	h, ok := t.entries[u.JobID]
	if !ok {
		return
	}
	if u.Pending {
		h.update(u)
		return
	}

	delete(t.entries, u.JobID)
	t.sched.Cancel(u.JobID)
	t.resolved(OutcomeDelivered)
	h.update(u)
}

// Fail ends the registration for id with err. Unknown IDs are ignored.
func (t *Table) Fail(id int64, err error) {
	if t.closing.Load() {
		return
	}
	h, ok := t.take(id)
	if !ok {
		return
	}
	t.sched.Cancel(id)
	t.resolved(OutcomeFailed)
	h.fail(err)
}

// OnTimeoutFired is the scheduler callback. It delivers ErrTimeout unless the
// entry is already gone or the process is shutting down; in the latter case
// the entry is left for teardown to reclaim.
func (t *Table) OnTimeoutFired(id int64) {
	if t.closing.Load() {
		return
	}
	h, ok := t.take(id)
	if !ok {
		return
	}
	t.resolved(OutcomeTimedOut)
	h.fail(ErrTimeout)
}

// Drop removes every entry without notifying its handler and returns how many
// were dropped.
func (t *Table) Drop() int {
	n := len(t.entries)
	for id := range t.entries {
		t.sched.Cancel(id)
	}
	clear(t.entries)
	return n
}

// Has reports whether id has a live registration.
func (t *Table) Has(id int64) bool {
	_, ok := t.entries[id]
	return ok
}

// Len returns the number of live registrations.
func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) take(id int64) (Handler, bool) {
	h, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return h, ok
}

func (t *Table) resolved(o Outcome) {
	if t.observe != nil {
		t.observe(o)
	}
}
