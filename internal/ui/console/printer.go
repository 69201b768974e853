// Package console prints a mission as it runs, one line per log entry, for
// terminals that do not host the live view and for piped output.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
	"github.com/user/marketradar/internal/ui"
)

// Printer is a mission.Observer that writes to w.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	now     func() time.Time
	verbose bool
}

func New(w io.Writer) *Printer {
	return &Printer{w: w, now: time.Now}
}

// Verbose also prints the agent's reasoning under each action.
func (p *Printer) Verbose(v bool) *Printer {
	p.verbose = v
	return p
}

func (p *Printer) OnLogAppended(entry types.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stamp := ui.MutedStyle.Render(entry.At.Local().Format("15:04:05"))
	fmt.Fprintf(p.w, "%s %s\n", stamp, ui.EntryStyle(entry).Render(ui.EntryText(entry)))
	if p.verbose && entry.Reasoning != "" {
		fmt.Fprintf(p.w, "         %s\n", ui.MutedStyle.Render(entry.Reasoning))
	}
}

func (p *Printer) OnRecordsReplaced(records []protocol.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	series := aggregate.Series(records, p.now())
	fmt.Fprintln(p.w, ui.SectionStyle.Render(ui.Totals(records, series)))
	for _, src := range aggregate.Sources(records) {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(p.w, "  %s %s\n", title, ui.MutedStyle.Render(fmt.Sprintf("(%d prices)", src.PriceCount)))
	}
}

func (p *Printer) OnMissionEnded(status mission.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s mission ended\n", ui.Badge(status))
}
