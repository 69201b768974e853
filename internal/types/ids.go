// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

// MissionID is assigned by the remote agent when it accepts a mission.
type MissionID string
type EntryID string
type NotifyTarget string

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// NewNotifyTarget joins a delivery prefix and its address, e.g. "telegram:12345".
func NewNotifyTarget(parts ...string) NotifyTarget {
	return NotifyTarget(strings.Join(parts, ":"))
}

// Short returns the first eight characters of the mission id for display.
func (id MissionID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}
