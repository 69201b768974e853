package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/marketradar/internal/types"
)

// maxLineSize bounds one journal line; action entries can carry long
// reasoning text.
const maxLineSize = 4 << 20

// JournalStore is a JSONL-backed append-only mission log.
// Entries are stored per mission in missions/<missionID>/log.jsonl.
type JournalStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.MissionID]*sync.Mutex
}

func NewJournalStore(root string) *JournalStore {
	return &JournalStore{
		root:  root,
		locks: make(map[types.MissionID]*sync.Mutex),
	}
}

func (j *JournalStore) getLock(id types.MissionID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[id] = lock
	return lock
}

func (j *JournalStore) logPath(id types.MissionID) string {
	return filepath.Join(j.root, "missions", string(id), "log.jsonl")
}

func newScanner(f *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return scanner
}

// count counts lines in the log. Caller must hold the mission lock.
func (j *JournalStore) count(id types.MissionID) (int64, error) {
	f, err := os.Open(j.logPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open mission log: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := newScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan mission log: %w", err)
	}
	return count, nil
}

// Append writes one entry, assigning its sequence number from the number of
// entries already on disk.
func (j *JournalStore) Append(_ context.Context, entry *types.LogEntry) error {
	if entry.MissionID == "" {
		return fmt.Errorf("append log entry: empty mission id")
	}
	lock := j.getLock(entry.MissionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.logPath(entry.MissionID)), 0o755); err != nil {
		return fmt.Errorf("create mission dir: %w", err)
	}

	existing, err := j.count(entry.MissionID)
	if err != nil {
		return err
	}
	entry.Seq = existing + 1

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	f, err := os.OpenFile(j.logPath(entry.MissionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open mission log: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write log entry: %w", err)
	}
	return nil
}

// Tail returns the last limit entries in order. A limit of zero or less
// returns the whole log.
func (j *JournalStore) Tail(_ context.Context, id types.MissionID, limit int) ([]*types.LogEntry, error) {
	lock := j.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.logPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open mission log: %w", err)
	}
	defer f.Close()

	var entries []*types.LogEntry
	scanner := newScanner(f)
	for scanner.Scan() {
		var entry types.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mission log: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (j *JournalStore) Count(_ context.Context, id types.MissionID) (int64, error) {
	lock := j.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	return j.count(id)
}
