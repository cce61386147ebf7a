package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/seantiz/scribe/internal/loop"
	"github.com/seantiz/scribe/internal/model"
	"github.com/seantiz/scribe/internal/pending"
	"github.com/seantiz/scribe/internal/quota"
	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
)

var epoch = time.Unix(1_700_000_000, 0)

type recordingNotifier struct {
	mu      sync.Mutex
	updates []model.QuotaUpdate
}

func (n *recordingNotifier) NotifyQuota(u model.QuotaUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *recordingNotifier) all() []model.QuotaUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.QuotaUpdate(nil), n.updates...)
}

type fixture struct {
	loop     *loop.Loop
	clock    clockwork.FakeClock
	store    *store.MemoryStore
	notifier *recordingNotifier
	session  *session.Switch
	closing  *atomic.Bool
	c        *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l := loop.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	f := &fixture{
		loop:     l,
		clock:    clockwork.NewFakeClockAt(epoch),
		store:    store.NewMemoryStore(),
		notifier: &recordingNotifier{},
		session:  session.NewSwitch(true, false),
		closing:  atomic.NewBool(false),
	}
	c, err := New(Options{
		Store:      f.store,
		Notifier:   f.notifier,
		Session:    f.session,
		Post:       l.Post,
		Clock:      f.clock,
		Closing:    f.closing,
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)
	f.c = c
	return f
}

// do runs fn on the coordinator's loop.
func (f *fixture) do(t *testing.T, fn func(c *Coordinator)) {
	t.Helper()
	require.NoError(t, f.loop.Call(context.Background(), func() { fn(f.c) }))
}

func (f *fixture) seed(t *testing.T, s quota.State) {
	t.Helper()
	b, err := s.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, f.store.Set(context.Background(), TrialKey, b))
}

func (f *fixture) persisted(t *testing.T) quota.State {
	t.Helper()
	b, err := f.store.Get(context.Background(), TrialKey)
	require.NoError(t, err)
	var s quota.State
	require.NoError(t, s.UnmarshalBinary(b))
	return s
}

// events collects handler invocations as strings.
type events chan string

func (e events) handler() pending.Handler {
	return pending.Handler{
		OnUpdate: func(u model.TranscriptionUpdate) {
			if u.Pending {
				e <- "pending:" + string(u.Payload)
			} else {
				e <- "final:" + string(u.Payload)
			}
		},
		OnError: func(err error) {
			switch {
			case errors.Is(err, pending.ErrTimeout):
				e <- "timeout"
			case errors.Is(err, pending.ErrDuplicateIdentifier):
				e <- "duplicate"
			default:
				e <- "error:" + err.Error()
			}
		},
	}
}

func (e events) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-e:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return ""
	}
}

func (e events) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-e:
		t.Fatalf("unexpected event %q", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestLoadWithoutPersistedState(t *testing.T) {
	f := newFixture(t)
	f.do(t, func(c *Coordinator) { c.Load(context.Background()) })

	assert.Equal(t, []model.QuotaUpdate{{}}, f.notifier.all())
	assert.Zero(t, f.store.Writes())
}

func TestLoadNormalizesElapsedCooldown(t *testing.T) {
	f := newFixture(t)
	f.seed(t, quota.State{WeeklyLimit: 10, MaxDuration: 60, Remaining: 0, CooldownUntil: epoch.Unix() - 1})

	f.do(t, func(c *Coordinator) { c.Load(context.Background()) })

	var got quota.State
	f.do(t, func(c *Coordinator) { got = c.Quota() })
	assert.Equal(t, quota.State{WeeklyLimit: 10, MaxDuration: 60, Remaining: 10}, got)
	assert.Equal(t, []model.QuotaUpdate{{MaxDurationSeconds: 60, WeeklyLimit: 10, RemainingTries: 10}}, f.notifier.all())
	assert.Equal(t, 1, f.store.Writes(), "load does not write back a valid state")
}

func TestLoadKeepsActiveCooldown(t *testing.T) {
	f := newFixture(t)
	seeded := quota.State{WeeklyLimit: 10, MaxDuration: 60, Remaining: 2, CooldownUntil: epoch.Unix() + 3600}
	f.seed(t, seeded)

	f.do(t, func(c *Coordinator) { c.Load(context.Background()) })

	var got quota.State
	f.do(t, func(c *Coordinator) { got = c.Quota() })
	assert.Equal(t, seeded, got)
}

func TestLoadCorruptStateSelfHeals(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), TrialKey, []byte{0xff, 0xff}))
	before := testutil.ToFloat64(quotaCorruptTotal)

	f.do(t, func(c *Coordinator) { c.Load(context.Background()) })

	assert.Equal(t, quota.State{}, f.persisted(t), "default state re-persisted")
	assert.Equal(t, 2, f.store.Writes())
	assert.Equal(t, []model.QuotaUpdate{{}}, f.notifier.all())
	assert.Equal(t, before+1, testutil.ToFloat64(quotaCorruptTotal))
}

func TestLoadSkippedForInactiveSession(t *testing.T) {
	for _, mode := range []string{session.ModeAnonymous, session.ModeRestricted} {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t)
			s, err := session.Parse(mode)
			require.NoError(t, err)
			f.session.Set(s.IsAuthorized(), s.IsRestricted())
			f.seed(t, quota.State{WeeklyLimit: 3})

			f.do(t, func(c *Coordinator) { c.Load(context.Background()) })

			assert.Empty(t, f.notifier.all())
			var got quota.State
			f.do(t, func(c *Coordinator) { got = c.Quota() })
			assert.Equal(t, quota.State{}, got)
		})
	}
}

func TestExternalUpdateAcceptedIsPersistedAndBroadcast(t *testing.T) {
	f := newFixture(t)

	var changed bool
	f.do(t, func(c *Coordinator) { changed = c.OnExternalQuotaUpdate(context.Background(), 10, 60, 0) })

	require.True(t, changed)
	want := quota.State{WeeklyLimit: 10, MaxDuration: 60, Remaining: 10}
	assert.Equal(t, want, f.persisted(t))
	assert.Equal(t, []model.QuotaUpdate{want.Snapshot()}, f.notifier.all())
}

func TestExternalUpdateUnchangedIsSilent(t *testing.T) {
	f := newFixture(t)
	f.do(t, func(c *Coordinator) { c.OnExternalQuotaUpdate(context.Background(), 10, 60, 0) })
	writes := f.store.Writes()
	notes := len(f.notifier.all())

	var changed bool
	f.do(t, func(c *Coordinator) { changed = c.OnExternalQuotaUpdate(context.Background(), 10, 60, -7) })

	assert.False(t, changed)
	assert.Equal(t, writes, f.store.Writes())
	assert.Len(t, f.notifier.all(), notes)
}

func TestExternalUpdateNegativeInputsOnDefaultIsNoop(t *testing.T) {
	f := newFixture(t)

	var changed bool
	f.do(t, func(c *Coordinator) { changed = c.OnExternalQuotaUpdate(context.Background(), -1, -1, -1) })

	assert.False(t, changed)
	assert.Zero(t, f.store.Writes())
	assert.Empty(t, f.notifier.all())
}

func TestExternalUpdateIgnoredWhenUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.session.Set(false, false)

	var changed bool
	f.do(t, func(c *Coordinator) { changed = c.OnExternalQuotaUpdate(context.Background(), 10, 60, 0) })

	assert.False(t, changed)
	assert.Zero(t, f.store.Writes())
}

func TestCurrentState(t *testing.T) {
	f := newFixture(t)
	f.do(t, func(c *Coordinator) { c.OnExternalQuotaUpdate(context.Background(), 5, 30, 0) })

	var got model.QuotaUpdate
	var ok bool
	f.do(t, func(c *Coordinator) { got, ok = c.CurrentState() })
	require.True(t, ok)
	assert.Equal(t, model.QuotaUpdate{MaxDurationSeconds: 30, WeeklyLimit: 5, RemainingTries: 5}, got)

	f.session.Set(true, true)
	f.do(t, func(c *Coordinator) { _, ok = c.CurrentState() })
	assert.False(t, ok)
}

func TestJobPendingThenFinal(t *testing.T) {
	f := newFixture(t)
	f.do(t, func(c *Coordinator) { c.OnExternalQuotaUpdate(context.Background(), 10, 60, 0) })

	ev := make(events, 8)
	f.do(t, func(c *Coordinator) { c.RegisterJob(42, ev.handler()) })

	f.do(t, func(c *Coordinator) {
		c.DeliverUpdate(model.TranscriptionUpdate{JobID: 42, Pending: true, Payload: json.RawMessage(`"he"`)})
	})
	assert.Equal(t, `pending:"he"`, ev.next(t))

	var live int
	f.do(t, func(c *Coordinator) { live = c.PendingJobs() })
	assert.Equal(t, 1, live)

	f.do(t, func(c *Coordinator) {
		c.DeliverUpdate(model.TranscriptionUpdate{JobID: 42, Payload: json.RawMessage(`"hello"`)})
	})
	assert.Equal(t, `final:"hello"`, ev.next(t))

	f.do(t, func(c *Coordinator) {
		c.DeliverUpdate(model.TranscriptionUpdate{JobID: 42, Payload: json.RawMessage(`"again"`)})
		live = c.PendingJobs()
	})
	ev.none(t)
	assert.Zero(t, live)

	// The canceled timeout never fires.
	f.clock.Advance(2 * time.Minute)
	ev.none(t)
}

func TestJobTimeout(t *testing.T) {
	f := newFixture(t)
	before := testutil.ToFloat64(jobsResolvedTotal.WithLabelValues("timed_out"))

	ev := make(events, 8)
	f.do(t, func(c *Coordinator) { c.RegisterJob(7, ev.handler()) })

	f.clock.Advance(time.Minute)
	assert.Equal(t, "timeout", ev.next(t))

	f.do(t, func(c *Coordinator) { c.table.OnTimeoutFired(7) })
	f.clock.Advance(time.Hour)
	ev.none(t)

	assert.Equal(t, before+1, testutil.ToFloat64(jobsResolvedTotal.WithLabelValues("timed_out")))
}

func TestTimeoutMeasuredFromRegistration(t *testing.T) {
	f := newFixture(t)
	ev := make(events, 8)
	f.do(t, func(c *Coordinator) { c.RegisterJob(3, ev.handler()) })

	f.clock.Advance(40 * time.Second)
	f.do(t, func(c *Coordinator) {
		c.DeliverUpdate(model.TranscriptionUpdate{JobID: 3, Pending: true, Payload: json.RawMessage(`1`)})
	})
	assert.Equal(t, "pending:1", ev.next(t))

	f.clock.Advance(20 * time.Second)
	assert.Equal(t, "timeout", ev.next(t))
}

func TestTimeoutSuppressedWhileClosing(t *testing.T) {
	f := newFixture(t)
	ev := make(events, 8)
	f.do(t, func(c *Coordinator) { c.RegisterJob(7, ev.handler()) })

	f.closing.Store(true)
	f.clock.Advance(time.Minute)
	ev.none(t)

	var live int
	f.do(t, func(c *Coordinator) { live = c.PendingJobs() })
	assert.Equal(t, 1, live)
}

func TestDuplicateRegistration(t *testing.T) {
	f := newFixture(t)
	a := make(events, 8)
	b := make(events, 8)

	f.do(t, func(c *Coordinator) {
		c.RegisterJob(5, a.handler())
		c.RegisterJob(5, b.handler())
	})
	assert.Equal(t, "duplicate", a.next(t))

	f.do(t, func(c *Coordinator) {
		c.DeliverUpdate(model.TranscriptionUpdate{JobID: 5, Payload: json.RawMessage(`"b"`)})
	})
	assert.Equal(t, `final:"b"`, b.next(t))
	a.none(t)
}

func TestDuplicateRegistrationGetsFreshTimeout(t *testing.T) {
	f := newFixture(t)
	a := make(events, 8)
	b := make(events, 8)

	f.do(t, func(c *Coordinator) { c.RegisterJob(5, a.handler()) })
	f.clock.Advance(50 * time.Second)
	f.do(t, func(c *Coordinator) { c.RegisterJob(5, b.handler()) })
	assert.Equal(t, "duplicate", a.next(t))

	// The first registration's deadline passes without effect.
	f.clock.Advance(20 * time.Second)
	b.none(t)

	f.clock.Advance(40 * time.Second)
	assert.Equal(t, "timeout", b.next(t))
}

func TestFailJob(t *testing.T) {
	f := newFixture(t)
	ev := make(events, 8)
	f.do(t, func(c *Coordinator) {
		c.RegisterJob(9, ev.handler())
		c.FailJob(9, pending.NewError(400, "unsupported audio"))
		c.FailJob(9, pending.NewError(400, "again"))
	})
	assert.Equal(t, "error:400: unsupported audio", ev.next(t))
	ev.none(t)
}

func TestTeardownDropsSilently(t *testing.T) {
	f := newFixture(t)
	ev := make(events, 8)
	f.do(t, func(c *Coordinator) {
		c.RegisterJob(1, ev.handler())
		c.RegisterJob(2, ev.handler())
	})

	f.closing.Store(true)
	f.do(t, func(c *Coordinator) { c.Teardown() })

	f.clock.Advance(time.Hour)
	ev.none(t)

	var live int
	f.do(t, func(c *Coordinator) { live = c.PendingJobs() })
	assert.Zero(t, live)
}
