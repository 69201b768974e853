package radar

import (
	"github.com/user/marketradar/internal/state"
	"github.com/user/marketradar/internal/types"
)

// TaskRequest turns a stored task into a launch request. Zero task fields
// fall back to defaults.
func TaskRequest(task state.Task, source string, defaults Request) Request {
	req := defaults
	req.Goal = task.Goal
	req.Source = source
	if task.MaxIterations > 0 {
		req.MaxIterations = task.MaxIterations
	}
	req.Headless = task.Headless
	if task.Notify != "" {
		req.Notify = types.NotifyTarget(task.Notify)
	}
	return req
}
