// Package timer provides per-ID timeouts whose expirations are delivered into
// a serialized execution context.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// MultiTimeout keeps at most one armed timeout per ID.
//
// Schedule, Cancel, CancelAll and Len must be called from the context that
// post feeds. Expirations are handed to post and then checked against the
// current generation of the ID, so a timer that fires concurrently with a
// Cancel or a re-Schedule never reaches the callback.
type MultiTimeout struct {
	clock    clockwork.Clock
	post     func(func()) bool
	callback func(id int64)
	timers   map[int64]armed
	gen      uint64
}

type armed struct {
	timer clockwork.Timer
	gen   uint64
}

// NewMultiTimeout creates a MultiTimeout driven by clock. post must be safe to
// call from any goroutine.
func NewMultiTimeout(clock clockwork.Clock, post func(func()) bool) *MultiTimeout {
	return &MultiTimeout{
		clock:  clock,
		post:   post,
		timers: make(map[int64]armed),
	}
}

// SetCallback sets the function invoked when a timeout for an ID expires.
func (m *MultiTimeout) SetCallback(fn func(id int64)) {
	m.callback = fn
}

// Schedule arms a timeout for id that expires after d, replacing any timeout
// already armed for it.
func (m *MultiTimeout) Schedule(id int64, d time.Duration) {
	m.Cancel(id)

	m.gen++
	gen := m.gen
	t := m.clock.AfterFunc(d, func() {
		m.post(func() { m.fire(id, gen) })
	})
	m.timers[id] = armed{timer: t, gen: gen}
}

// Cancel disarms the timeout for id. It is a no-op if none is armed.
func (m *MultiTimeout) Cancel(id int64) {
	a, ok := m.timers[id]
	if !ok {
		return
	}
	a.timer.Stop()
	delete(m.timers, id)
}

// CancelAll disarms every timeout.
func (m *MultiTimeout) CancelAll() {
	for id, a := range m.timers {
		a.timer.Stop()
		delete(m.timers, id)
	}
}

// Len returns the number of armed timeouts.
func (m *MultiTimeout) Len() int {
	return len(m.timers)
}

func (m *MultiTimeout) fire(id int64, gen uint64) {
	a, ok := m.timers[id]
	if !ok || a.gen != gen {
		return
	}
	delete(m.timers, id)
	if m.callback != nil {
		m.callback(id)
	}
}
