// internal/types/models.go
package types

import (
	"time"
)

// MissionHandle identifies one accepted mission and where its event stream lives.
type MissionHandle struct {
	ID       MissionID `json:"mission_id"`
	Endpoint string    `json:"websocket_url"`
}

type ActionCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// LogEntry is one element of a mission's append-only log. At is the time the
// client observed the event, not the agent's own time.
type LogEntry struct {
	ID              EntryID     `json:"id"`
	MissionID       MissionID   `json:"mission_id"`
	Seq             int64       `json:"seq"`
	Type            string      `json:"type"`
	At              time.Time   `json:"at"`
	Message         string      `json:"message,omitempty"`
	URL             string      `json:"url,omitempty"`
	Iteration       *int        `json:"iteration,omitempty"`
	Thought         string      `json:"thought,omitempty"`
	Reasoning       string      `json:"reasoning,omitempty"`
	Action          *ActionCall `json:"action,omitempty"`
	ExtractedCount  *int        `json:"extracted_count,omitempty"`
	Summary         string      `json:"summary,omitempty"`
	TotalIterations *int        `json:"total_iterations,omitempty"`
}

type MissionIndex struct {
	MissionID MissionID  `json:"mission_id"`
	Goal      string     `json:"goal"`
	Endpoint  string     `json:"endpoint"`
	Status    string     `json:"status"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Entries   int64      `json:"entries"`
	Records   int        `json:"records"`
}
