package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"

	"github.com/seantiz/scribe/internal/backend"
	"github.com/seantiz/scribe/internal/coordinator"
	"github.com/seantiz/scribe/internal/loop"
	"github.com/seantiz/scribe/internal/model"
	"github.com/seantiz/scribe/internal/pending"
	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
)

// ErrInvalidJob is returned by Submit for a request without a job ID.
var ErrInvalidJob = errors.New("job id must be non-zero")

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("engine closed")

// JobRequest asks for a recognition job to be run.
type JobRequest struct {
	ID       int64  `json:"id"`
	Model    string `json:"model"`
	AudioURL string `json:"audio_url"`
}

// Options configures an Engine. Store, Registry and Session are required.
type Options struct {
	Store      store.KV
	Registry   *backend.Registry
	Session    session.Guard
	Clock      clockwork.Clock
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Engine orchestrates asynchronous recognition jobs.
type Engine struct {
	registry *backend.Registry
	clock    clockwork.Clock
	logger   *slog.Logger
	broker   *Broker
	closing  *atomic.Bool

	loop  *loop.Loop
	coord *coordinator.Coordinator

	// jobCtx parents every backend invocation; cancelJobs aborts them on Close.
	jobCtx     context.Context
	cancelJobs context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates an engine and starts its loop. The persisted quota is not read
// until Load is called.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	e := &Engine{
		registry: opts.Registry,
		clock:    opts.Clock,
		logger:   opts.Logger,
		broker:   NewBroker(),
		closing:  atomic.NewBool(false),
		loop:     loop.New(0),
	}

	coord, err := coordinator.New(coordinator.Options{
		Store:      opts.Store,
		Notifier:   e.broker,
		Session:    opts.Session,
		Post:       e.loop.Post,
		Clock:      opts.Clock,
		Closing:    e.closing,
		JobTimeout: opts.JobTimeout,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	e.coord = coord
	e.jobCtx, e.cancelJobs = context.WithCancel(context.Background())

	go e.loop.Run(context.Background())
	return e, nil
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *Broker {
	return e.broker
}

// Closing reports whether Close has started.
func (e *Engine) Closing() bool {
	return e.closing.Load()
}

// Load restores the persisted quota state.
func (e *Engine) Load(ctx context.Context) error {
	return e.call(ctx, func() { e.coord.Load(ctx) })
}

// Submit registers a job and launches its backend in a goroutine. Events for
// the job are published on the returned registration's topic, which is
// closed after the terminal event.
func (e *Engine) Submit(ctx context.Context, req JobRequest) (*model.Registration, error) {
	if req.ID == 0 {
		return nil, ErrInvalidJob
	}
	if req.Model == "" {
		req.Model = model.ModelAuto
	}
	b, err := e.registry.Resolve(req.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve backend: %w", err)
	}

	reg := &model.Registration{
		JobID:          req.ID,
		RegistrationID: model.NewID(),
		Model:          req.Model,
		CreatedAt:      e.clock.Now().UTC(),
	}

	e.broker.Open(reg.RegistrationID)

	jobCtx, cancel := context.WithCancel(e.jobCtx)
	var maxDuration int32
	err = e.call(ctx, func() {
		e.coord.RegisterJob(req.ID, e.handler(reg, cancel))
		maxDuration = e.coord.Quota().MaxDuration
	})
	if err != nil {
		cancel()
		e.broker.Close(reg.RegistrationID)
		return nil, err
	}

	spec := backend.JobSpec{
		ID:           req.ID,
		Model:        req.Model,
		AudioURL:     req.AudioURL,
		MaxDurationS: maxDuration,
	}
	e.wg.Go(func() {
		e.transcribe(jobCtx, b, spec)
	})

	e.logger.Info("job submitted",
		"job_id", req.ID,
		"registration_id", reg.RegistrationID,
		"model", req.Model,
	)
	return reg, nil
}

// handler publishes the job's events on the registration topic and stops the
// backend once the job resolves.
func (e *Engine) handler(reg *model.Registration, cancel context.CancelFunc) pending.Handler {
	publish := func(ev model.JobEvent) {
		ev.JobID = reg.JobID
		ev.RegistrationID = reg.RegistrationID
		data, err := json.Marshal(ev)
		if err != nil {
			e.logger.Error("failed to encode job event", "job_id", reg.JobID, "error", err)
			return
		}
		e.broker.PublishRetained(reg.RegistrationID, string(data))
		if ev.Terminal() {
			e.broker.Close(reg.RegistrationID)
			cancel()
		}
	}

	return pending.Handler{
		OnUpdate: func(u model.TranscriptionUpdate) {
			typ := model.EventFinal
			if u.Pending {
				typ = model.EventPending
			}
			publish(model.JobEvent{Type: typ, Payload: u.Payload})
		},
		OnError: func(err error) {
			e.logger.Warn("job failed",
				"job_id", reg.JobID,
				"registration_id", reg.RegistrationID,
				"error", err,
			)
			publish(model.JobEvent{Type: model.EventError, Error: err.Error()})
		},
	}
}

// transcribe runs b for one registration. ctx is canceled on the loop when the
// registration resolves or is superseded, so output checked against it inside
// a loop task never reaches a newer registration of the same job ID.
func (e *Engine) transcribe(ctx context.Context, b backend.Backend, spec backend.JobSpec) {
	emit := func(u model.TranscriptionUpdate) {
		u.JobID = spec.ID
		e.loop.Post(func() {
			if ctx.Err() != nil {
				return
			}
			e.coord.DeliverUpdate(u)
		})
	}

	err := b.Transcribe(ctx, spec, emit)
	if err == nil || ctx.Err() != nil {
		return
	}
	e.logger.Error("backend failed", "job_id", spec.ID, "model", spec.Model, "error", err)
	e.loop.Post(func() {
		if ctx.Err() != nil {
			return
		}
		e.coord.FailJob(spec.ID, pending.NewError(500, err.Error()))
	})
}

// Deliver routes an externally produced update to its job. Updates for
// unknown or resolved jobs are dropped.
func (e *Engine) Deliver(ctx context.Context, u model.TranscriptionUpdate) error {
	return e.call(ctx, func() { e.coord.DeliverUpdate(u) })
}

// Fail ends the job with an externally reported error.
func (e *Engine) Fail(ctx context.Context, id int64, message string) error {
	return e.call(ctx, func() { e.coord.FailJob(id, pending.NewError(500, message)) })
}

// CurrentQuota returns the quota snapshot, or false when the session has no
// quota to report.
func (e *Engine) CurrentQuota(ctx context.Context) (model.QuotaUpdate, bool, error) {
	var (
		u  model.QuotaUpdate
		ok bool
	)
	err := e.call(ctx, func() { u, ok = e.coord.CurrentState() })
	return u, ok, err
}

// UpdateQuota applies limits pushed by the quota authority and returns the
// resulting snapshot and whether it changed.
func (e *Engine) UpdateQuota(ctx context.Context, weeklyLimit, maxDuration int32, cooldownUntil int64) (model.QuotaUpdate, bool, error) {
	var (
		u       model.QuotaUpdate
		changed bool
	)
	err := e.call(ctx, func() {
		changed = e.coord.OnExternalQuotaUpdate(ctx, weeklyLimit, maxDuration, cooldownUntil)
		u = e.coord.Quota().Snapshot()
	})
	return u, changed, err
}

// PendingJobs returns the number of jobs waiting for a final result.
func (e *Engine) PendingJobs(ctx context.Context) (int, error) {
	var n int
	err := e.call(ctx, func() { n = e.coord.PendingJobs() })
	return n, err
}

// Wait blocks until all in-flight backend goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close marks the engine as closing, drops pending jobs without notifying
// them, stops the loop and waits for backends to return. Open event streams
// are closed.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		err = e.loop.Call(ctx, e.coord.Teardown)
		e.loop.Stop()
		<-e.loop.Done()

		e.cancelJobs()
		e.wg.Wait()
		e.broker.CloseAll()
	})
	return err
}

func (e *Engine) call(ctx context.Context, fn func()) error {
	if e.closing.Load() {
		return ErrClosed
	}
	err := e.loop.Call(ctx, fn)
	if errors.Is(err, loop.ErrStopped) {
		return ErrClosed
	}
	return err
}
