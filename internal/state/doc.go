// Package state provides filesystem-backed storage for mission logs, record
// snapshots, the mission index and scheduled tasks.
package state

import "github.com/user/marketradar/internal/types"

// Compile-time interface compliance checks.
var _ types.JournalStore = (*JournalStore)(nil)
var _ types.MissionStore = (*MissionStore)(nil)
