package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

func sampleRecords(t *testing.T) []protocol.Record {
	t.Helper()
	raw := `[
		{"url":"https://loja.example/cafe","title":"Café Torrado 500g","timestamp":"2025-03-01T10:00:00",
		 "prices":[{"value":18.5,"currency":"BRL"},21.5],"product_names":["Café Pilão"]},
		{"url":"https://mercado.example/cafe","title":"Café | Oferta","prices":["sob consulta"]}
	]`
	var records []protocol.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		t.Fatal(err)
	}
	return records
}

func TestBuildUsesFirstSummary(t *testing.T) {
	iters := 7
	entries := []types.LogEntry{
		{Type: "system", Message: "Connected to server"},
		{Type: "complete", Summary: "Found 2 offers", TotalIterations: &iters},
	}
	r := Build("café", entries, sampleRecords(t), time.Now())
	if r.Summary != "Found 2 offers" {
		t.Errorf("expected summary from entries, got %q", r.Summary)
	}
	if r.Iterations == nil || *r.Iterations != 7 {
		t.Errorf("expected 7 iterations, got %v", r.Iterations)
	}
	if !r.HasAverage || r.Average != 20 {
		t.Errorf("expected average 20, got %v (%v)", r.Average, r.HasAverage)
	}
	if r.Counts.Sources != 2 || r.Counts.Prices != 2 {
		t.Errorf("unexpected counts %+v", r.Counts)
	}
}

func TestBuildFallbackSummary(t *testing.T) {
	r := Build("x", nil, sampleRecords(t), time.Now())
	if r.Summary != "2 records extracted" {
		t.Errorf("expected fallback summary, got %q", r.Summary)
	}
	empty := Build("x", nil, nil, time.Now())
	if empty.HasAverage {
		t.Error("expected no average without prices")
	}
}

func TestMarkdown(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	md := Markdown(Build("Preço do café", nil, sampleRecords(t), now))

	for _, want := range []string{
		"# MarketRadar - Research Report",
		"**Goal:** Preço do café",
		"### Record 1",
		"- R$ 18,50",
		"- R$ 21,50",
		"**Average:** R$ 20,00",
		"- sob consulta",
		"## Consulted Sources",
		`Café \| Oferta`,
		"- Average price: R$ 20,00",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestMarkdownConvertsHTMLSummary(t *testing.T) {
	entries := []types.LogEntry{{Summary: "<p>Prices <strong>dropped</strong></p>"}}
	md := Markdown(Build("g", entries, nil, time.Now()))
	if !strings.Contains(md, "Prices **dropped**") {
		t.Errorf("expected converted summary, got\n%s", md)
	}
	if strings.Contains(md, "<strong>") {
		t.Error("expected html tags removed")
	}
}

func TestNotice(t *testing.T) {
	r := Build("café", nil, sampleRecords(t), time.Now())
	n := Notice(r, mission.StatusComplete)
	if !strings.HasPrefix(n, "✅ Mission complete: café") {
		t.Errorf("unexpected notice header: %q", n)
	}
	if !strings.Contains(n, "2 records from 2 sources, average R$ 20,00") {
		t.Errorf("unexpected notice body: %q", n)
	}
	if !strings.HasPrefix(Notice(r, mission.StatusError), "❌") {
		t.Error("expected failure marker")
	}
	if !strings.HasPrefix(Notice(r, mission.StatusIdle), "⏹") {
		t.Error("expected stopped marker")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)); got != "marketradar-report-2025-01-09.md" {
		t.Errorf("unexpected file name %s", got)
	}
}
