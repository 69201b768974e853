package aggregate

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/marketradar/internal/protocol"
)

const sourceLabelLimit = 30

// LabelLayout formats a point's timestamp label.
const LabelLayout = "02 Jan 15:04"

// PricePoint is one price placed on the time axis.
type PricePoint struct {
	Value          float64   `json:"value"`
	Currency       string    `json:"currency"`
	At             time.Time `json:"at"`
	TimestampLabel string    `json:"timestamp_label"`
	SourceLabel    string    `json:"source_label"`
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form Python's
// datetime.isoformat produces.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses a record timestamp. Zone-less values are read as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Series flattens every numeric price of every record into points sorted by
// the record timestamp, oldest first. Records without a parseable timestamp
// are placed at now. Ties keep record order, then price order.
func Series(records []protocol.Record, now time.Time) []PricePoint {
	var points []PricePoint
	for i, rec := range records {
		at, ok := ParseTimestamp(rec.Timestamp)
		if !ok {
			at = now
		}
		label := sourceLabel(rec, i)
		for _, p := range rec.Prices {
			if !p.Numeric() {
				continue
			}
			points = append(points, PricePoint{
				Value:          p.Value,
				Currency:       p.CurrencyCode(),
				At:             at,
				TimestampLabel: at.Format(LabelLayout),
				SourceLabel:    label,
			})
		}
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].At.Before(points[j].At)
	})
	return points
}

// sourceLabel picks title, then URL, then a 1-based positional placeholder,
// truncated to sourceLabelLimit runes.
func sourceLabel(rec protocol.Record, index int) string {
	label := rec.Title
	if label == "" {
		label = rec.URL
	}
	if label == "" {
		label = "Source " + strconv.Itoa(index+1)
	}
	runes := []rune(label)
	if len(runes) > sourceLabelLimit {
		return string(runes[:sourceLabelLimit])
	}
	return label
}
