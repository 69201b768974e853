package radar

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

const storeTimeout = 5 * time.Second

// recorder persists session changes as they happen.
type recorder struct {
	runner *Runner
	id     types.MissionID
	logger *slog.Logger
}

func (r *recorder) OnLogAppended(entry types.LogEntry) {
	if r.runner.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.runner.journal.Append(ctx, &entry); err != nil {
		r.logger.Warn("journal append failed", "seq", entry.Seq, "error", err)
	}
	if entry.Type == string(protocol.KindSystem) {
		r.setStatus(ctx, mission.StatusRunning)
	}
}

func (r *recorder) OnRecordsReplaced(records []protocol.Record) {
	if r.runner.records == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.runner.records.Put(ctx, r.id, records); err != nil {
		r.logger.Warn("store records failed", "count", len(records), "error", err)
	}
}

func (r *recorder) OnMissionEnded(status mission.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	r.setStatus(ctx, status)
}

func (r *recorder) setStatus(ctx context.Context, status mission.Status) {
	store := r.runner.missions
	if store == nil {
		return
	}
	idx, err := store.Get(ctx, r.id)
	if err != nil {
		return
	}
	idx.Status = string(status)
	if err := store.Update(ctx, idx); err != nil {
		r.logger.Warn("update mission status failed", "status", status, "error", err)
	}
}
