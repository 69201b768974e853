package aggregate

import "github.com/user/marketradar/internal/protocol"

// SourceView summarizes every record that shares one URL.
type SourceView struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	PriceCount int    `json:"price_count"`
}

// Sources deduplicates records by URL. Records without a URL are skipped.
// When several records share a URL the later one overwrites the view's
// metadata; the view keeps the position where the URL first appeared.
func Sources(records []protocol.Record) []SourceView {
	index := make(map[string]int)
	var views []SourceView
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		view := SourceView{
			URL:        rec.URL,
			Title:      rec.Title,
			Timestamp:  rec.Timestamp,
			PriceCount: len(rec.Prices),
		}
		if i, ok := index[rec.URL]; ok {
			views[i] = view
			continue
		}
		index[rec.URL] = len(views)
		views = append(views, view)
	}
	return views
}
