package aggregate

import "github.com/user/marketradar/internal/protocol"

// AveragePrice returns the arithmetic mean of the numeric prices. The bool is
// false when the list holds no numeric value; the mean is then undefined, not 0.
func AveragePrice(prices []protocol.Price) (float64, bool) {
	var sum float64
	var n int
	for _, p := range prices {
		if !p.Numeric() {
			continue
		}
		sum += p.Value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// SeriesAverage is the mean over every point of a flattened series.
func SeriesAverage(points []PricePoint) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points)), true
}

// Counts is what a record set holds, for headers and notices.
type Counts struct {
	Records int `json:"records"`
	Sources int `json:"sources"`
	Prices  int `json:"prices"`
}

// Totals counts records, distinct sources and numeric prices.
func Totals(records []protocol.Record) Counts {
	totals := Counts{Records: len(records), Sources: len(Sources(records))}
	for _, rec := range records {
		for _, p := range rec.Prices {
			if p.Numeric() {
				totals.Prices++
			}
		}
	}
	return totals
}
