package radar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/marketradar/internal/lifecycle"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/report"
	"github.com/user/marketradar/internal/types"
)

// StatusStopped is recorded in the mission index when a user stopped the
// mission before it ended on its own.
const StatusStopped = "stopped"

// Result is the final state of a watched mission.
type Result struct {
	MissionID types.MissionID
	Goal      string
	Status    mission.Status
	Stopped   bool
	Summary   string
	Entries   []types.LogEntry
	Records   []protocol.Record
	StartedAt time.Time
	EndedAt   time.Time
}

// Watch is one mission being streamed.
type Watch struct {
	Handle    types.MissionHandle
	Goal      string
	StartedAt time.Time

	runner  *Runner
	request Request
	session *mission.Session
	manager *lifecycle.Manager
	logger  *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	result   *Result
}

// Session exposes the live session for read-only views.
func (w *Watch) Session() *mission.Session { return w.session }

// Stop asks for the mission to be stopped. It returns immediately; use Wait
// to block until teardown is done.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watch) Done() <-chan struct{} { return w.done }

// Wait blocks until the mission ended and returns its result.
func (w *Watch) Wait(ctx context.Context) (*Result, error) {
	if err := w.waitDone(ctx); err != nil {
		return nil, err
	}
	return w.result, nil
}

func (w *Watch) waitDone(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// supervise waits for the stream to end on its own, for Stop, or for ctx.
// The latter two stop the mission remotely before tearing down.
func (w *Watch) supervise(ctx context.Context) {
	defer close(w.done)
	defer w.runner.release(w.Handle.ID)

	stopped := false
	select {
	case <-w.manager.Done():
	case <-w.stop:
		stopped = true
	case <-ctx.Done():
		stopped = true
	}

	if stopped && !w.session.Ended() {
		w.remoteStop()
	}
	w.manager.Close()

	w.result = &Result{
		MissionID: w.Handle.ID,
		Goal:      w.Goal,
		Status:    w.session.Status(),
		Stopped:   stopped && !w.session.Ended(),
		Summary:   w.session.Summary(),
		Entries:   w.session.Entries(),
		Records:   w.session.Records(),
		StartedAt: w.StartedAt,
		EndedAt:   w.runner.now(),
	}
	w.finish()
}

func (w *Watch) remoteStop() {
	ctx, cancel := context.WithTimeout(context.Background(), w.runner.stopTimeout)
	defer cancel()
	if err := w.runner.api.Stop(ctx, w.Handle.ID); err != nil {
		w.logger.Warn("remote stop failed", "error", err)
		return
	}
	w.logger.Info("mission stopped")
}

// finish writes the final index entry and sends the notice.
func (w *Watch) finish() {
	res := w.result
	ctx, cancel := context.WithTimeout(context.Background(), w.runner.stopTimeout)
	defer cancel()

	if store := w.runner.missions; store != nil {
		if idx, err := store.Get(ctx, res.MissionID); err == nil {
			idx.Status = string(res.Status)
			if res.Stopped {
				idx.Status = StatusStopped
			}
			ended := res.EndedAt
			idx.EndedAt = &ended
			idx.Entries = int64(len(res.Entries))
			idx.Records = len(res.Records)
			if err := store.Update(ctx, idx); err != nil {
				w.logger.Warn("update mission index failed", "error", err)
			}
		}
	}

	w.logger.Info("mission ended", "status", res.Status, "entries", len(res.Entries), "records", len(res.Records))

	if w.request.Notify == "" || w.runner.notify == nil {
		return
	}
	rep := report.Build(res.Goal, res.Entries, res.Records, res.EndedAt)
	if err := w.runner.notify.Deliver(w.request.Notify, report.Notice(rep, res.Status)); err != nil {
		w.logger.Warn("deliver notice failed", "target", w.request.Notify, "error", err)
	}
}
