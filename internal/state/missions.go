package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/marketradar/internal/types"
)

// MissionStore is a JSON-file-backed mission index at missions/missions.json.
// Each mission also gets a directory at missions/<missionID>/ for its log and
// records.
type MissionStore struct {
	root string
	mu   sync.RWMutex
}

func NewMissionStore(root string) *MissionStore {
	return &MissionStore{root: root}
}

func (s *MissionStore) indexPath() string {
	return filepath.Join(s.root, "missions", "missions.json")
}

func (s *MissionStore) missionDir(id types.MissionID) string {
	return filepath.Join(s.root, "missions", string(id))
}

func (s *MissionStore) loadIndex() (map[types.MissionID]*types.MissionIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.MissionID]*types.MissionIndex), nil
		}
		return nil, fmt.Errorf("read mission index: %w", err)
	}

	var missions []*types.MissionIndex
	if err := json.Unmarshal(data, &missions); err != nil {
		return nil, fmt.Errorf("unmarshal mission index: %w", err)
	}

	index := make(map[types.MissionID]*types.MissionIndex, len(missions))
	for _, m := range missions {
		index[m.MissionID] = m
	}
	return index, nil
}

func (s *MissionStore) saveIndex(index map[types.MissionID]*types.MissionIndex) error {
	data, err := json.MarshalIndent(sorted(index), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mission index: %w", err)
	}
	if err := writeFileAtomic(s.indexPath(), data); err != nil {
		return fmt.Errorf("save mission index: %w", err)
	}
	return nil
}

// sorted lists missions newest first.
func sorted(index map[types.MissionID]*types.MissionIndex) []*types.MissionIndex {
	missions := make([]*types.MissionIndex, 0, len(index))
	for _, m := range index {
		missions = append(missions, m)
	}
	sort.Slice(missions, func(i, j int) bool {
		if missions[i].CreatedAt.Equal(missions[j].CreatedAt) {
			return missions[i].MissionID < missions[j].MissionID
		}
		return missions[i].CreatedAt.After(missions[j].CreatedAt)
	})
	return missions
}

// Create indexes a newly accepted mission with status idle.
func (s *MissionStore) Create(_ context.Context, handle types.MissionHandle, goal, source string) (*types.MissionIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	if _, ok := index[handle.ID]; ok {
		return nil, fmt.Errorf("mission already exists: %s", handle.ID)
	}

	now := time.Now()
	m := &types.MissionIndex{
		MissionID: handle.ID,
		Goal:      goal,
		Endpoint:  handle.Endpoint,
		Status:    "idle",
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	index[handle.ID] = m

	if err := s.saveIndex(index); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.missionDir(handle.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create mission dir: %w", err)
	}
	return m, nil
}

func (s *MissionStore) Get(_ context.Context, id types.MissionID) (*types.MissionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	if m, ok := index[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("mission %s: %w", id, ErrNotFound)
}

// List returns all missions, newest first.
func (s *MissionStore) List(_ context.Context) ([]*types.MissionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return sorted(index), nil
}

// Update persists changes to the given mission, setting UpdatedAt to now.
func (s *MissionStore) Update(_ context.Context, mission *types.MissionIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	if _, ok := index[mission.MissionID]; !ok {
		return fmt.Errorf("mission %s: %w", mission.MissionID, ErrNotFound)
	}

	mission.UpdatedAt = time.Now()
	index[mission.MissionID] = mission
	return s.saveIndex(index)
}

// Resolve finds a mission by full id or by a unique id prefix.
func (s *MissionStore) Resolve(ctx context.Context, prefix string) (*types.MissionIndex, error) {
	missions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var match *types.MissionIndex
	for _, m := range missions {
		if string(m.MissionID) == prefix {
			return m, nil
		}
		if prefix != "" && strings.HasPrefix(string(m.MissionID), prefix) {
			if match != nil {
				return nil, fmt.Errorf("mission prefix %q is ambiguous", prefix)
			}
			match = m
		}
	}
	if match == nil {
		return nil, fmt.Errorf("mission %s: %w", prefix, ErrNotFound)
	}
	return match, nil
}
