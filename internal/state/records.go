package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

// SnapshotMeta describes a stored record set.
type SnapshotMeta struct {
	MissionID types.MissionID `json:"mission_id"`
	Count     int             `json:"count"`
	SavedAt   time.Time       `json:"saved_at"`
}

// snapshotWrapper is the on-disk format: {"meta": ..., "data": [...]}.
type snapshotWrapper struct {
	Meta *SnapshotMeta     `json:"meta"`
	Data []protocol.Record `json:"data"`
}

// RecordStore keeps the latest record set of each mission at
// missions/<missionID>/records.json. Every Put replaces the whole file.
type RecordStore struct {
	root string
	now  func() time.Time
}

func NewRecordStore(root string) *RecordStore {
	return &RecordStore{root: root, now: time.Now}
}

func (r *RecordStore) recordsPath(id types.MissionID) string {
	return filepath.Join(r.root, "missions", string(id), "records.json")
}

func (r *RecordStore) read(id types.MissionID) (*snapshotWrapper, error) {
	data, err := os.ReadFile(r.recordsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("records for %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read records file: %w", err)
	}

	var wrapper snapshotWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return &wrapper, nil
}

// Put atomically replaces the stored record set for a mission.
func (r *RecordStore) Put(_ context.Context, id types.MissionID, records []protocol.Record) error {
	if records == nil {
		records = []protocol.Record{}
	}
	wrapper := &snapshotWrapper{
		Meta: &SnapshotMeta{MissionID: id, Count: len(records), SavedAt: r.now()},
		Data: records,
	}
	content, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	if err := writeFileAtomic(r.recordsPath(id), content); err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	return nil
}

// Get returns the stored records. A mission that never reached a complete or
// incomplete event has none; that is ErrNotFound.
func (r *RecordStore) Get(_ context.Context, id types.MissionID) ([]protocol.Record, error) {
	wrapper, err := r.read(id)
	if err != nil {
		return nil, err
	}
	return wrapper.Data, nil
}

func (r *RecordStore) GetMeta(_ context.Context, id types.MissionID) (*SnapshotMeta, error) {
	wrapper, err := r.read(id)
	if err != nil {
		return nil, err
	}
	return wrapper.Meta, nil
}
