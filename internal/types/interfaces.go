// internal/types/interfaces.go
package types

import (
	"context"
)

type JournalStore interface {
	Append(ctx context.Context, entry *LogEntry) error
	Tail(ctx context.Context, missionID MissionID, limit int) ([]*LogEntry, error)
	Count(ctx context.Context, missionID MissionID) (int64, error)
}

type MissionStore interface {
	Create(ctx context.Context, handle MissionHandle, goal, source string) (*MissionIndex, error)
	Get(ctx context.Context, id MissionID) (*MissionIndex, error)
	List(ctx context.Context) ([]*MissionIndex, error)
	Update(ctx context.Context, mission *MissionIndex) error
}
