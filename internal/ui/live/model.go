package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
	"github.com/user/marketradar/internal/ui"
)

// Source is the read side of a mission session.
type Source interface {
	Status() mission.Status
	Entries() []types.LogEntry
	Records() []protocol.Record
}

// DoneMsg tells the view the mission was torn down. Stopped is true when
// the user stopped it before it ended.
type DoneMsg struct {
	Stopped bool
}

const (
	defaultLogLines = 12
	maxSources      = 8
)

// Model is the bubbletea model of the live view.
type Model struct {
	id      types.MissionID
	goal    string
	source  Source
	ctrl    *Controller
	stop    func()
	now     func() time.Time
	spinner spinner.Model

	status  mission.Status
	entries []types.LogEntry
	records []protocol.Record

	done     bool
	stopped  bool
	stopping bool
	width    int
	height   int
}

// NewModel builds the view for one mission. stop is called once when the
// user asks to stop while the mission still runs.
func NewModel(id types.MissionID, goal string, source Source, ctrl *Controller, stop func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle
	return Model{
		id:      id,
		goal:    goal,
		source:  source,
		ctrl:    ctrl,
		stop:    stop,
		now:     time.Now,
		spinner: sp,
		status:  mission.StatusIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.ctrl.Listen(), func() tea.Msg { return refreshMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.done && !m.stopping && m.stop != nil {
				m.stopping = true
				m.stop()
			}
			return m, tea.Quit
		case "s":
			if !m.done && !m.stopping && m.stop != nil {
				m.stopping = true
				m.stop()
			}
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case refreshMsg:
		m.refresh()
		if m.done {
			return m, nil
		}
		return m, m.ctrl.Listen()
	case DoneMsg:
		m.refresh()
		m.done = true
		m.stopped = msg.Stopped
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) refresh() {
	m.status = m.source.Status()
	m.entries = m.source.Entries()
	m.records = m.source.Records()
}

func (m Model) logLines() int {
	if m.height <= 0 {
		return defaultLogLines
	}
	// header, goal, separators, stats, sources and help take the rest
	lines := m.height - 10 - min(len(aggregate.Sources(m.records)), maxSources)
	return max(lines, 3)
}

func (m Model) View() string {
	var b strings.Builder

	title := ui.TitleStyle.Render("MarketRadar")
	if !m.done && !m.status.Terminal() {
		title = m.spinner.View() + " " + title
	}
	status := ui.Badge(m.status)
	if m.done && m.stopped {
		status = ui.Badge(mission.StatusIdle) + " " + ui.MutedStyle.Render("stopped")
	}
	fmt.Fprintf(&b, "%s  %s  %s\n", title, status, ui.MutedStyle.Render(m.id.Short()))
	fmt.Fprintf(&b, "%s %s\n\n", ui.SectionStyle.Render("Goal:"), m.goal)

	entries := m.entries
	if n := m.logLines(); len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		b.WriteString(ui.MutedStyle.Render("Waiting for the agent...") + "\n")
	}
	for _, e := range entries {
		line := ui.EntryText(e)
		if m.width > 12 && len([]rune(line)) > m.width-10 {
			line = string([]rune(line)[:m.width-13]) + "..."
		}
		fmt.Fprintf(&b, "%s %s\n", ui.MutedStyle.Render(e.At.Local().Format("15:04:05")), ui.EntryStyle(e).Render(line))
	}

	if len(m.records) > 0 {
		series := aggregate.Series(m.records, m.now())
		fmt.Fprintf(&b, "\n%s\n", ui.SectionStyle.Render(ui.Totals(m.records, series)))
		sources := aggregate.Sources(m.records)
		for i, src := range sources {
			if i == maxSources {
				fmt.Fprintf(&b, "  %s\n", ui.MutedStyle.Render(fmt.Sprintf("and %d more", len(sources)-maxSources)))
				break
			}
			label := src.Title
			if label == "" {
				label = src.URL
			}
			fmt.Fprintf(&b, "  %s %s\n", label, ui.MutedStyle.Render(fmt.Sprintf("(%d)", src.PriceCount)))
		}
	}

	b.WriteString("\n")
	switch {
	case m.done:
		b.WriteString(ui.MutedStyle.Render("q quit"))
	case m.stopping:
		b.WriteString(ui.MutedStyle.Render("stopping..."))
	default:
		b.WriteString(ui.MutedStyle.Render("s stop  q stop and quit"))
	}
	b.WriteString("\n")
	return b.String()
}
