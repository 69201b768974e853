// Package lifecycle keeps exactly one stream connection open for the mission
// that is flagged running and tears it down on every exit path.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/transport"
	"github.com/user/marketradar/internal/types"
)

// key is what the open connection is bound to. Any change to either field
// replaces the connection.
type key struct {
	id      types.MissionID
	running bool
}

// Manager drives a mission.Session from a transport connection. All session
// mutations run under one dispatch lock, so frames are handled one at a time
// in arrival order and nothing from a torn-down connection reaches the
// session. Session observers run under that lock and must not call back into
// the Manager synchronously.
type Manager struct {
	dialer  transport.Dialer
	session *mission.Session
	logger  *slog.Logger

	mu      sync.Mutex
	key     key
	current *connection

	dispatch sync.Mutex
}

type connection struct {
	handle types.MissionHandle
	cancel context.CancelFunc
	done   chan struct{}
	// stale is guarded by Manager.dispatch.
	stale bool
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(dialer transport.Dialer, session *mission.Session, opts ...Option) *Manager {
	m := &Manager{
		dialer:  dialer,
		session: session,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Session() *mission.Session { return m.session }

// Start resets the session for a newly accepted mission and opens its stream,
// tearing down whatever connection was open before.
func (m *Manager) Start(handle types.MissionHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.dispatch.Lock()
	m.session.Start(handle)
	m.dispatch.Unlock()
	m.key = key{id: handle.ID, running: true}
	m.openLocked(handle)
}

// Sync binds the manager to (handle, running). When the pair differs from the
// current one the previous connection is fully torn down before a new one is
// opened; a connection is only opened for a running mission. Calling Sync with
// the current pair does nothing, even if that connection already ended.
func (m *Manager) Sync(handle types.MissionHandle, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{id: handle.ID, running: running}
	if k == m.key {
		return
	}
	m.teardownLocked()
	m.key = k
	if handle.ID == "" || !running {
		return
	}
	m.openLocked(handle)
}

// Close tears down the current connection, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.key = key{}
}

// Done returns a channel that is closed when the current connection has
// stopped. With no connection the channel is already closed.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.current.done
}

// Wait blocks until the current connection stops or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openLocked starts the connection goroutine. Caller holds m.mu.
func (m *Manager) openLocked(handle types.MissionHandle) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		handle: handle,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.current = c
	m.logger.Debug("opening mission stream", "mission", handle.ID, "endpoint", handle.Endpoint)
	go m.run(ctx, c)
}

// teardownLocked marks the current connection stale, stops it and waits for
// its goroutine to exit. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	c := m.current
	if c == nil {
		return
	}
	m.current = nil

	m.dispatch.Lock()
	c.stale = true
	m.dispatch.Unlock()

	c.cancel()
	<-c.done

	m.dispatch.Lock()
	if m.session.Handle().ID == c.handle.ID {
		m.session.Disconnected()
	}
	m.dispatch.Unlock()
	m.logger.Debug("mission stream torn down", "mission", c.handle.ID)
}

// deliver runs fn under the dispatch lock unless c has gone stale or the
// session moved on to another mission. It reports fn's result.
func (m *Manager) deliver(c *connection, fn func() bool) bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	if c.stale || m.session.Handle().ID != c.handle.ID {
		return false
	}
	return fn()
}

func (m *Manager) run(ctx context.Context, c *connection) {
	defer close(c.done)
	logger := m.logger.With("mission", c.handle.ID)

	conn, err := m.dialer.Dial(ctx, c.handle.Endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("mission stream dial failed", "error", err)
		m.deliver(c, func() bool { return m.session.TransportFailed(err) })
		return
	}
	defer conn.Close()

	m.deliver(c, m.session.Connected)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.Messages():
			if !ok {
				m.deliver(c, m.session.Disconnected)
				return
			}
			switch msg.Kind {
			case transport.Frame:
				if m.deliver(c, func() bool { return m.session.HandleFrame(msg.Data) }) {
					logger.Debug("mission stream reached terminal event")
					return
				}
			case transport.Failure:
				m.deliver(c, func() bool { return m.session.TransportFailed(msg.Err) })
				return
			case transport.Closed:
				m.deliver(c, m.session.Disconnected)
				return
			}
		}
	}
}
