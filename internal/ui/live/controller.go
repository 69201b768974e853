// Package live renders a running mission as a full-screen terminal view.
package live

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

// Controller is the observer the live view listens to. Callbacks never block:
// they only poke the view, which then reads the session itself.
type Controller struct {
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewController() *Controller {
	return &Controller{
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (c *Controller) OnLogAppended(types.LogEntry)        { c.poke() }
func (c *Controller) OnRecordsReplaced([]protocol.Record) { c.poke() }
func (c *Controller) OnMissionEnded(mission.Status)       { c.poke() }

func (c *Controller) poke() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// Close releases a pending Listen.
func (c *Controller) Close() {
	c.once.Do(func() { close(c.done) })
}

type refreshMsg struct{}

// Listen waits for the next change.
func (c *Controller) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-c.changed:
			return refreshMsg{}
		case <-c.done:
			return nil
		}
	}
}
