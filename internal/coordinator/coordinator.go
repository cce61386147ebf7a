// Package coordinator ties the trial quota and the pending job table to the
// durable store and to listener notifications.
//
// A Coordinator is confined to one serialized execution context (see package
// loop): every method must be called from that context, and the Post function
// it is built with must feed the same context.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/seantiz/scribe/internal/model"
	"github.com/seantiz/scribe/internal/pending"
	"github.com/seantiz/scribe/internal/quota"
	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
	"github.com/seantiz/scribe/internal/timer"
)

// TrialKey is the store key holding the encoded quota state.
const TrialKey = "speech_recognition_trial"

// DefaultJobTimeout bounds how long a registered job may wait for its final
// result.
const DefaultJobTimeout = 60 * time.Second

// Notifier delivers quota snapshots to listeners.
type Notifier interface {
	NotifyQuota(model.QuotaUpdate)
}

// Options configures a Coordinator. Store, Notifier, Session and Post are
// required.
type Options struct {
	Store    store.KV
	Notifier Notifier
	Session  session.Guard

	// Post submits a task to the coordinator's execution context. Timer
	// expirations arrive through it.
	Post func(func()) bool

	Clock      clockwork.Clock
	Closing    *atomic.Bool
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Coordinator owns the trial quota and the pending job table.
type Coordinator struct {
	store    store.KV
	notifier Notifier
	session  session.Guard
	clock    clockwork.Clock
	logger   *slog.Logger

	timeouts *timer.MultiTimeout
	table    *pending.Table
	quota    quota.State
}

// New creates a Coordinator with the default quota state. Call Load to
// restore the persisted one.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("coordinator: store is required")
	case opts.Notifier == nil:
		return nil, errors.New("coordinator: notifier is required")
	case opts.Session == nil:
		return nil, errors.New("coordinator: session guard is required")
	case opts.Post == nil:
		return nil, errors.New("coordinator: post function is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Closing == nil {
		opts.Closing = atomic.NewBool(false)
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Coordinator{
		store:    opts.Store,
		notifier: opts.Notifier,
		session:  opts.Session,
		clock:    opts.Clock,
		logger:   opts.Logger,
		timeouts: timer.NewMultiTimeout(opts.Clock, opts.Post),
	}
	c.table = pending.New(c.timeouts, opts.JobTimeout,
		pending.WithClosing(opts.Closing),
		pending.WithObserver(observeOutcome),
	)
	c.timeouts.SetCallback(c.table.OnTimeoutFired)
	return c, nil
}

// Load restores the persisted quota for an active session and notifies
// listeners of the result. Undecodable state is logged, reset to the default
// and overwritten.
func (c *Coordinator) Load(ctx context.Context) {
	if !session.Active(c.session) {
		return
	}

	data, err := c.store.Get(ctx, TrialKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		c.logger.Error("failed to read speech recognition trial", "error", err)
	default:
		var st quota.State
		if err := st.UnmarshalBinary(data); err != nil {
			c.logger.Error("failed to parse speech recognition trial, resetting", "error", err)
			quotaCorruptTotal.Inc()
			c.quota = quota.State{}
			c.save(ctx)
		} else {
			st.Normalize(c.now())
			c.quota = st
		}
	}

	c.notify()
}

// OnExternalQuotaUpdate applies limits pushed by the quota authority. It
// reports whether the state changed; changes are broadcast and persisted.
func (c *Coordinator) OnExternalQuotaUpdate(ctx context.Context, weeklyLimit, maxDuration int32, cooldownUntil int64) bool {
	if !c.session.IsAuthorized() {
		return false
	}
	if !c.quota.ApplyExternalUpdate(weeklyLimit, maxDuration, cooldownUntil, c.now()) {
		quotaUpdatesTotal.WithLabelValues("unchanged").Inc()
		return false
	}
	quotaUpdatesTotal.WithLabelValues("accepted").Inc()

	c.logger.Info("speech recognition trial updated",
		"weekly_limit", c.quota.WeeklyLimit,
		"max_duration_s", c.quota.MaxDuration,
		"remaining", c.quota.Remaining,
		"cooldown_until", c.quota.CooldownUntil,
	)
	c.notify()
	c.save(ctx)
	return true
}

// CurrentState returns the snapshot a newly attached listener needs, or
// false when the session has no quota to report.
func (c *Coordinator) CurrentState() (model.QuotaUpdate, bool) {
	if !session.Active(c.session) {
		return model.QuotaUpdate{}, false
	}
	return c.quota.Snapshot(), true
}

// Quota returns the current quota state.
func (c *Coordinator) Quota() quota.State {
	return c.quota
}

// RegisterJob starts correlating events for id with h.
func (c *Coordinator) RegisterJob(id int64, h pending.Handler) {
	c.table.Register(id, h)
	jobsPending.Inc()
}

// DeliverUpdate routes a progress or final update to its job.
func (c *Coordinator) DeliverUpdate(u model.TranscriptionUpdate) {
	if !c.table.Has(u.JobID) {
		c.logger.Debug("dropping update for unknown job", "job_id", u.JobID, "pending", u.Pending)
	}
	c.table.DeliverUpdate(u)
}

// FailJob ends the job with err.
func (c *Coordinator) FailJob(id int64, err error) {
	c.table.Fail(id, err)
}

// PendingJobs returns the number of live registrations.
func (c *Coordinator) PendingJobs() int {
	return c.table.Len()
}

// Teardown cancels every timeout and drops pending jobs without notifying
// their handlers. The Coordinator must not be used afterwards.
func (c *Coordinator) Teardown() {
	c.timeouts.CancelAll()
	if n := c.table.Drop(); n > 0 {
		jobsPending.Sub(float64(n))
		c.logger.Info("dropped pending jobs on teardown", "count", n)
	}
	c.store = nil
	c.notifier = nil
}

func (c *Coordinator) now() int64 {
	return c.clock.Now().Unix()
}

func (c *Coordinator) notify() {
	c.notifier.NotifyQuota(c.quota.Snapshot())
}

func (c *Coordinator) save(ctx context.Context) {
	data, err := c.quota.MarshalBinary()
	if err == nil {
		err = c.store.Set(ctx, TrialKey, data)
	}
	if err != nil {
		c.logger.Error("failed to save speech recognition trial", "error", fmt.Errorf("save quota: %w", err))
	}
}
