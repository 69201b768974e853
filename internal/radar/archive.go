package radar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/report"
	"github.com/user/marketradar/internal/state"
	"github.com/user/marketradar/internal/types"
)

// Archive reads what past and running missions left in the stores.
type Archive struct {
	Missions *state.MissionStore
	Journal  *state.JournalStore
	Records  *state.RecordStore
}

// NewArchive opens the stores under dir.
func NewArchive(dir string) *Archive {
	return &Archive{
		Missions: state.NewMissionStore(dir),
		Journal:  state.NewJournalStore(dir),
		Records:  state.NewRecordStore(dir),
	}
}

// Mission resolves a full id or a unique id prefix.
func (a *Archive) Mission(ctx context.Context, prefix string) (*types.MissionIndex, error) {
	return a.Missions.Resolve(ctx, prefix)
}

// Entries returns the last limit log entries of a mission, all of them when
// limit is not positive.
func (a *Archive) Entries(ctx context.Context, id types.MissionID, limit int) ([]types.LogEntry, error) {
	tail, err := a.Journal.Tail(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	entries := make([]types.LogEntry, 0, len(tail))
	for _, e := range tail {
		entries = append(entries, *e)
	}
	return entries, nil
}

// RecordSet returns the latest record snapshot. A mission that has not
// produced one yet has no records.
func (a *Archive) RecordSet(ctx context.Context, id types.MissionID) ([]protocol.Record, error) {
	records, err := a.Records.Get(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return []protocol.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

// Report builds the research report of a stored mission.
func (a *Archive) Report(ctx context.Context, idx *types.MissionIndex, now time.Time) (report.Report, error) {
	entries, err := a.Entries(ctx, idx.MissionID, 0)
	if err != nil {
		return report.Report{}, err
	}
	records, err := a.RecordSet(ctx, idx.MissionID)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(idx.Goal, entries, records, now), nil
}
