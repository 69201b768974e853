package mission

// Status is the lifecycle state of the current mission stream.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether no further frames can change this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) String() string { return string(s) }

// ParseStatus maps a persisted status string back to a Status. Unknown values
// read as idle.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusRunning, StatusComplete, StatusError:
		return Status(s)
	default:
		return StatusIdle
	}
}
