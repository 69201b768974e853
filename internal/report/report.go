// Package report turns a finished mission into a research report and a short
// chat notice.
package report

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/marketradar/internal/aggregate"
	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

// Report is a read-only snapshot of one mission's results.
type Report struct {
	Goal        string
	GeneratedAt time.Time
	Summary     string
	Records     []protocol.Record
	Sources     []aggregate.SourceView
	Series      []aggregate.PricePoint
	Average     float64
	HasAverage  bool
	Counts      aggregate.Counts
	Iterations  *int
}

// Build assembles a report. The summary is the first one any log entry
// carries; without one it falls back to a record count.
func Build(goal string, entries []types.LogEntry, records []protocol.Record, now time.Time) Report {
	r := Report{
		Goal:        goal,
		GeneratedAt: now,
		Records:     records,
		Sources:     aggregate.Sources(records),
		Series:      aggregate.Series(records, now),
		Counts:      aggregate.Totals(records),
	}
	r.Average, r.HasAverage = aggregate.SeriesAverage(r.Series)
	for _, e := range entries {
		if r.Summary == "" && e.Summary != "" {
			r.Summary = e.Summary
		}
		if e.TotalIterations != nil {
			r.Iterations = e.TotalIterations
		}
	}
	if r.Summary == "" {
		r.Summary = fmt.Sprintf("%d records extracted", len(records))
	}
	return r
}

// FileName is the default export name for a report generated at now.
func FileName(now time.Time) string {
	return "marketradar-report-" + now.Format("2006-01-02") + ".md"
}

// Markdown renders the full report.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# MarketRadar - Research Report\n\n")
	fmt.Fprintf(&b, "**Goal:** %s\n\n", inline(r.Goal))
	fmt.Fprintf(&b, "_Generated %s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04"))

	b.WriteString(toMarkdown(r.Summary))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "- Records: %d\n- Sources: %d\n- Prices: %d\n", r.Counts.Records, r.Counts.Sources, r.Counts.Prices)
	if r.HasAverage {
		fmt.Fprintf(&b, "- Average price: %s\n", aggregate.FormatPrice(r.Average, currencyOf(r.Series)))
	}
	if r.Iterations != nil {
		fmt.Fprintf(&b, "- Iterations: %d\n", *r.Iterations)
	}

	if len(r.Records) > 0 {
		b.WriteString("\n## Extracted Data\n")
		for i, rec := range r.Records {
			fmt.Fprintf(&b, "\n### Record %d\n\n", i+1)
			if rec.Title != "" {
				fmt.Fprintf(&b, "**Title:** %s\n\n", inline(rec.Title))
			}
			if rec.URL != "" {
				fmt.Fprintf(&b, "**URL:** <%s>\n\n", rec.URL)
			}
			if len(rec.ProductNames) > 0 {
				fmt.Fprintf(&b, "**Products:** %s\n\n", inline(strings.Join(rec.ProductNames, ", ")))
			}
			writePrices(&b, rec)
		}
	}

	if len(r.Sources) > 0 {
		b.WriteString("\n## Consulted Sources\n\n")
		b.WriteString("| Source | URL | Prices |\n|---|---|---|\n")
		for _, s := range r.Sources {
			title := s.Title
			if title == "" {
				title = "-"
			}
			fmt.Fprintf(&b, "| %s | <%s> | %d |\n", cell(title), s.URL, s.PriceCount)
		}
	}
	return b.String()
}

func writePrices(b *strings.Builder, rec protocol.Record) {
	if len(rec.Prices) == 0 {
		return
	}
	fmt.Fprintf(b, "Prices found (%d):\n\n", len(rec.Prices))
	for _, p := range rec.Prices {
		if p.Numeric() {
			fmt.Fprintf(b, "- %s\n", aggregate.FormatPrice(p.Value, p.CurrencyCode()))
			continue
		}
		if text := p.Text(); text != "" {
			fmt.Fprintf(b, "- %s\n", inline(text))
			continue
		}
		b.WriteString("- (unparsed)\n")
	}
	if avg, ok := aggregate.AveragePrice(rec.Prices); ok {
		currency := rec.Currency
		if currency == "" && len(rec.Prices) > 0 {
			currency = rec.Prices[0].CurrencyCode()
		}
		fmt.Fprintf(b, "\n**Average:** %s\n", aggregate.FormatPrice(avg, currency))
	}
}

// Notice is the short message sent to chat targets when a mission ends.
func Notice(r Report, status mission.Status) string {
	var b strings.Builder
	switch status {
	case mission.StatusComplete:
		b.WriteString("✅ Mission complete")
	case mission.StatusError:
		b.WriteString("❌ Mission failed")
	default:
		b.WriteString("⏹ Mission stopped")
	}
	fmt.Fprintf(&b, ": %s\n\n", inline(r.Goal))
	b.WriteString(toMarkdown(r.Summary))
	fmt.Fprintf(&b, "\n\n%d records from %d sources", r.Counts.Records, r.Counts.Sources)
	if r.HasAverage {
		fmt.Fprintf(&b, ", average %s", aggregate.FormatPrice(r.Average, currencyOf(r.Series)))
	}
	return b.String()
}

// currencyOf picks the currency of the first point; mixed-currency series
// are averaged as-is.
func currencyOf(points []aggregate.PricePoint) string {
	if len(points) == 0 {
		return protocol.DefaultCurrency
	}
	return points[0].Currency
}

// toMarkdown normalizes agent text that may contain HTML.
func toMarkdown(text string) string {
	text = strings.TrimSpace(text)
	if !strings.ContainsAny(text, "<&") {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		slog.Debug("summary html conversion failed", "error", err)
		return text
	}
	return strings.TrimSpace(md)
}

// inline flattens text to a single markdown line.
func inline(text string) string {
	return strings.Join(strings.Fields(toMarkdown(text)), " ")
}

func cell(text string) string {
	return strings.ReplaceAll(inline(text), "|", `\|`)
}
