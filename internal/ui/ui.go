// Package ui holds the styles and text formatting shared by the console
// printer and the live view.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	SectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ErrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	OKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ActionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

var badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))

// Badge renders a status as a colored label.
func Badge(status mission.Status) string {
	color := "8"
	switch status {
	case mission.StatusRunning:
		color = "12"
	case mission.StatusComplete:
		color = "10"
	case mission.StatusError:
		color = "9"
	}
	return badgeBase.Background(lipgloss.Color(color)).Render(strings.ToUpper(status.String()))
}

// EntryStyle picks the style a log entry is printed with.
func EntryStyle(entry types.LogEntry) lipgloss.Style {
	switch protocol.Kind(entry.Type) {
	case protocol.KindError:
		return ErrStyle
	case protocol.KindComplete:
		return OKStyle
	case protocol.KindIncomplete:
		return WarnStyle
	case protocol.KindAction:
		return ActionStyle
	case protocol.KindSystem:
		return MutedStyle
	default:
		return lipgloss.NewStyle()
	}
}

// EntryText is the one-line, unstyled rendering of a log entry.
func EntryText(entry types.LogEntry) string {
	var text string
	switch protocol.Kind(entry.Type) {
	case protocol.KindAction:
		var b strings.Builder
		if entry.Iteration != nil {
			fmt.Fprintf(&b, "[%d] ", *entry.Iteration)
		}
		if entry.Action != nil && entry.Action.Name != "" {
			b.WriteString(entry.Action.Name)
		} else {
			b.WriteString("action")
		}
		if entry.Thought != "" {
			b.WriteString(": ")
			b.WriteString(entry.Thought)
		}
		if entry.ExtractedCount != nil && *entry.ExtractedCount > 0 {
			fmt.Fprintf(&b, " (+%d extracted)", *entry.ExtractedCount)
		}
		text = b.String()
	case protocol.KindComplete:
		text = "Completed: " + entry.Summary
	case protocol.KindIncomplete:
		text = "Incomplete: " + firstNonEmpty(entry.Message, entry.Summary)
	case protocol.KindError:
		text = "Error: " + entry.Message
	default:
		text = entry.Message
	}
	if entry.URL != "" && protocol.Kind(entry.Type) != protocol.KindComplete {
		text += " <" + entry.URL + ">"
	}
	return strings.Join(strings.Fields(text), " ")
}

// Totals summarizes a record set in one line: records, sources and the
// average price when there is one.
func Totals(records []protocol.Record, series []aggregate.PricePoint) string {
	counts := aggregate.Totals(records)
	line := fmt.Sprintf("%d records from %d sources, %d prices", counts.Records, counts.Sources, counts.Prices)
	if avg, ok := aggregate.SeriesAverage(series); ok {
		currency := ""
		if len(series) > 0 {
			currency = series[0].Currency
		}
		line += ", average " + aggregate.FormatPrice(avg, currency)
	}
	return line
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
