// Package mission holds the per-mission view: the status state machine, the
// append-only log and the record set of the latest terminal event.
package mission

import (
	"log/slog"
	"sync"
	"time"

	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

// Synthesized log messages.
const (
	MessageConnected       = "Connected to server"
	MessageCompleted       = "Mission completed successfully"
	MessageTransportFailed = "WebSocket connection error"
)

// Session owns one mission's status, log and records. Reads are safe from any
// goroutine. Mutations must be serialized by the caller; the lifecycle manager
// does this with its dispatch lock.
type Session struct {
	mu      sync.RWMutex
	handle  types.MissionHandle
	status  Status
	entries []types.LogEntry
	records []protocol.Record
	summary string

	observers Observers
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithObserver registers an observer at construction time.
func WithObserver(obs Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, obs) }
}

// New returns an idle session with no mission.
func New(opts ...Option) *Session {
	s := &Session{
		status: StatusIdle,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe adds an observer for all later changes.
func (s *Session) Observe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// changes collects what a mutation produced so observers can be notified
// after the state lock is released.
type changes struct {
	entries  []types.LogEntry
	records  []protocol.Record
	replaced bool
	ended    bool
	status   Status
}

func (s *Session) notify(c changes) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	if len(observers) == 0 {
		return
	}
	for _, entry := range c.entries {
		observers.OnLogAppended(entry)
	}
	if c.replaced {
		observers.OnRecordsReplaced(c.records)
	}
	if c.ended {
		observers.OnMissionEnded(c.status)
	}
}

// appendLocked adds one entry to the log. Caller holds s.mu.
func (s *Session) appendLocked(c *changes, entry types.LogEntry) {
	entry.ID = types.NewEntryID()
	entry.MissionID = s.handle.ID
	entry.Seq = int64(len(s.entries) + 1)
	entry.At = s.now()
	s.entries = append(s.entries, entry)
	c.entries = append(c.entries, entry)
}

// endLocked moves the session to a terminal status. Caller holds s.mu.
func (s *Session) endLocked(c *changes, status Status) {
	s.status = status
	c.ended = true
	c.status = status
}

// Start forcibly resets the session for a newly accepted mission. The log and
// the record set are cleared whatever the previous status was.
func (s *Session) Start(handle types.MissionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = handle
	s.status = StatusIdle
	s.entries = nil
	s.records = nil
	s.summary = ""
	s.logger.Debug("mission session reset", "mission", handle.ID)
}

// Connected marks the stream as open and records the connect entry. It only
// applies to an idle session that holds a mission.
func (s *Session) Connected() bool {
	var c changes
	s.mu.Lock()
	if s.status != StatusIdle || s.handle.ID == "" {
		s.mu.Unlock()
		return false
	}
	s.status = StatusRunning
	s.appendLocked(&c, types.LogEntry{
		Type:    string(protocol.KindSystem),
		Message: MessageConnected,
	})
	s.mu.Unlock()

	s.notify(c)
	return true
}

// HandleFrame decodes one raw frame and applies it. A frame that fails to
// decode ends the mission with an error entry. It reports whether the frame
// ended the stream.
func (s *Session) HandleFrame(frame []byte) bool {
	ev, err := protocol.Decode(frame)
	if err == nil {
		return s.Apply(ev)
	}

	var c changes
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return false
	}
	s.logger.Warn("dropping mission stream", "mission", s.handle.ID, "error", err)
	s.appendLocked(&c, types.LogEntry{
		Type:    string(protocol.KindError),
		Message: err.Error(),
	})
	s.endLocked(&c, StatusError)
	s.mu.Unlock()

	s.notify(c)
	return true
}

// Apply feeds one decoded event into the state machine. Events arriving when
// the session is not running are ignored. It reports whether the event ended
// the stream.
func (s *Session) Apply(ev protocol.Event) bool {
	var c changes
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		s.logger.Debug("ignoring event outside running mission", "kind", ev.Kind())
		return false
	}

	switch e := ev.(type) {
	case protocol.StatusEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:    string(protocol.KindStatus),
			Message: e.Message,
			URL:     e.URL,
		})
	case protocol.ActionEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:           string(protocol.KindAction),
			Iteration:      e.Iteration,
			Thought:        e.Thought,
			Reasoning:      e.Reasoning,
			Action:         e.Action,
			URL:            e.URL,
			ExtractedCount: e.ExtractedCount,
		})
	case protocol.CompleteEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:            string(protocol.KindComplete),
			Message:         MessageCompleted,
			Summary:         e.Summary,
			TotalIterations: e.TotalIterations,
		})
		s.replaceLocked(&c, e.Records, e.Summary)
		s.endLocked(&c, StatusComplete)
	case protocol.IncompleteEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:    string(protocol.KindIncomplete),
			Message: e.Message,
			Summary: e.Summary,
		})
		s.replaceLocked(&c, e.Records, e.Summary)
		s.endLocked(&c, StatusComplete)
	case protocol.ErrorEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:    string(protocol.KindError),
			Message: e.Message,
		})
		s.endLocked(&c, StatusError)
	case protocol.SystemEvent:
		s.appendLocked(&c, types.LogEntry{
			Type:    string(protocol.KindSystem),
			Message: e.Message,
		})
	}
	s.mu.Unlock()

	s.notify(c)
	return c.ended
}

// replaceLocked swaps in the record set of a terminal event. Caller holds s.mu.
func (s *Session) replaceLocked(c *changes, records []protocol.Record, summary string) {
	replaced := make([]protocol.Record, len(records))
	copy(replaced, records)
	s.records = replaced
	s.summary = summary
	c.records = replaced
	c.replaced = true
}

// TransportFailed ends the mission after a connection-level failure, either
// while running or when the stream could not be opened at all. The log gets a
// generic entry; the cause only goes to the logger.
func (s *Session) TransportFailed(err error) bool {
	var c changes
	s.mu.Lock()
	if s.status != StatusRunning && !s.dialingLocked() {
		s.mu.Unlock()
		return false
	}
	s.logger.Error("mission transport failed", "mission", s.handle.ID, "error", err)
	s.appendLocked(&c, types.LogEntry{
		Type:    string(protocol.KindError),
		Message: MessageTransportFailed,
	})
	s.endLocked(&c, StatusError)
	s.mu.Unlock()

	s.notify(c)
	return true
}

// dialingLocked reports an accepted mission whose stream never opened.
func (s *Session) dialingLocked() bool {
	return s.status == StatusIdle && s.handle.ID != "" && len(s.entries) == 0
}

// Disconnected applies the close fallback: a stream that closes while still
// running, with no terminal event seen, returns the session to idle. Terminal
// statuses are never regressed. No observer callback fires.
func (s *Session) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return false
	}
	s.status = StatusIdle
	s.logger.Info("mission stream closed before a terminal event", "mission", s.handle.ID)
	return true
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Handle() types.MissionHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Entries returns a copy of the log in arrival order.
func (s *Session) Entries() []types.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Records returns a copy of the record set of the latest terminal event.
func (s *Session) Records() []protocol.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Ended reports whether the current stream reached a terminal event.
func (s *Session) Ended() bool {
	return s.Status().Terminal()
}

// Summary returns the agent's summary from the terminal event, if any.
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}
