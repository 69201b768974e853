// Package radar runs missions end to end: it asks the agent server to accept
// a goal, streams the mission through a lifecycle manager, persists what the
// session produces and delivers a notice when the mission ends.
package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/marketradar/internal/lifecycle"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/missionapi"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/transport"
	"github.com/user/marketradar/internal/types"
)

// API is the part of the agent server the runner needs.
type API interface {
	Start(ctx context.Context, req missionapi.StartRequest) (types.MissionHandle, error)
	Stop(ctx context.Context, id types.MissionID) error
}

// RecordStore keeps the latest record set per mission.
type RecordStore interface {
	Put(ctx context.Context, id types.MissionID, records []protocol.Record) error
}

// Deliverer sends a finished mission's notice to a target.
type Deliverer interface {
	Deliver(target types.NotifyTarget, message string) error
}

// Request describes one mission to launch.
type Request struct {
	Goal          string
	MaxIterations int
	Headless      bool
	// Source names what launched the mission: cli, schedule, webhook, telegram.
	Source string
	Notify types.NotifyTarget
}

// Runner launches and watches missions. The number of missions watched at the
// same time is bounded; Begin blocks until a slot frees up.
type Runner struct {
	api      API
	dialer   transport.Dialer
	missions types.MissionStore
	journal  types.JournalStore
	records  RecordStore
	notify   Deliverer

	sem         *semaphore.Weighted
	stopTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	active map[types.MissionID]*Watch
}

type Option func(*Runner)

// WithStores persists mission index, log and records. Any of them may be nil.
func WithStores(missions types.MissionStore, journal types.JournalStore, records RecordStore) Option {
	return func(r *Runner) {
		r.missions = missions
		r.journal = journal
		r.records = records
	}
}

func WithDelivery(d Deliverer) Option {
	return func(r *Runner) { r.notify = d }
}

// WithMaxConcurrent bounds concurrently watched missions. Values below one
// are ignored.
func WithMaxConcurrent(n int64) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(api API, dialer transport.Dialer, opts ...Option) *Runner {
	r := &Runner{
		api:         api,
		dialer:      dialer,
		sem:         semaphore.NewWeighted(2),
		stopTimeout: 10 * time.Second,
		logger:      slog.Default(),
		now:         time.Now,
		active:      make(map[types.MissionID]*Watch),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin asks the server to start a mission and streams it. Observers see the
// session from its first entry. Cancelling ctx before the mission ends stops
// it on the server and tears the stream down.
func (r *Runner) Begin(ctx context.Context, req Request, observers ...mission.Observer) (*Watch, error) {
	return r.Launch(ctx, ctx, req, observers...)
}

// Launch is Begin with the wait for a free slot bounded by admit instead of
// ctx. A caller that gives up while every slot is busy starts nothing; once a
// slot is taken the mission lives under ctx alone.
func (r *Runner) Launch(admit, ctx context.Context, req Request, observers ...mission.Observer) (*Watch, error) {
	if err := r.sem.Acquire(admit, 1); err != nil {
		return nil, fmt.Errorf("waiting for a mission slot: %w", err)
	}
	if err := admit.Err(); err != nil {
		r.sem.Release(1)
		return nil, fmt.Errorf("waiting for a mission slot: %w", err)
	}

	handle, err := r.api.Start(ctx, missionapi.StartRequest{
		Goal:          req.Goal,
		Headless:      req.Headless,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		r.sem.Release(1)
		return nil, err
	}
	return r.watch(ctx, handle, req, observers), nil
}

// Attach streams a mission that was already accepted by the server.
func (r *Runner) Attach(ctx context.Context, handle types.MissionHandle, req Request, observers ...mission.Observer) (*Watch, error) {
	if handle.ID == "" || handle.Endpoint == "" {
		return nil, fmt.Errorf("attach: incomplete mission handle")
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a mission slot: %w", err)
	}
	return r.watch(ctx, handle, req, observers), nil
}

func (r *Runner) watch(ctx context.Context, handle types.MissionHandle, req Request, observers []mission.Observer) *Watch {
	logger := r.logger.With("mission", handle.ID.Short())
	r.index(ctx, handle, req, logger)

	opts := []mission.Option{
		mission.WithLogger(logger),
		mission.WithClock(r.now),
		mission.WithObserver(&recorder{runner: r, id: handle.ID, logger: logger}),
	}
	for _, obs := range observers {
		opts = append(opts, mission.WithObserver(obs))
	}
	session := mission.New(opts...)
	manager := lifecycle.New(r.dialer, session, lifecycle.WithLogger(logger))

	w := &Watch{
		Handle:    handle,
		Goal:      req.Goal,
		StartedAt: r.now(),
		runner:    r,
		request:   req,
		session:   session,
		manager:   manager,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.active[handle.ID] = w
	r.mu.Unlock()

	manager.Start(handle)
	logger.Info("mission started", "goal", req.Goal, "source", req.Source)
	go w.supervise(ctx)
	return w
}

// index records a new mission, or reuses the entry of an attached one.
func (r *Runner) index(ctx context.Context, handle types.MissionHandle, req Request, logger *slog.Logger) {
	if r.missions == nil {
		return
	}
	if _, err := r.missions.Get(ctx, handle.ID); err == nil {
		return
	}
	if _, err := r.missions.Create(ctx, handle, req.Goal, req.Source); err != nil {
		logger.Warn("index mission failed", "error", err)
	}
}

// Active lists the ids of missions being watched, sorted.
func (r *Runner) Active() []types.MissionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]types.MissionID, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup returns the watch for a mission this runner is streaming.
func (r *Runner) Lookup(id types.MissionID) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.active[id]
	return w, ok
}

// Stop stops a mission. A watched mission is stopped and torn down locally
// too; any other id is only forwarded to the server.
func (r *Runner) Stop(ctx context.Context, id types.MissionID) error {
	if w, ok := r.Lookup(id); ok {
		w.Stop()
		return w.waitDone(ctx)
	}
	return r.api.Stop(ctx, id)
}

// Close stops every watched mission and waits for them to finish.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	watches := make([]*Watch, 0, len(r.active))
	for _, w := range r.active {
		watches = append(watches, w)
	}
	r.mu.Unlock()

	var errs []error
	for _, w := range watches {
		w.Stop()
	}
	for _, w := range watches {
		if err := w.waitDone(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) release(id types.MissionID) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
	r.sem.Release(1)
}
