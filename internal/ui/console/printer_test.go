package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/user/marketradar/internal/mission"
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

func TestPrinterFollowsSession(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf).Verbose(true)

	s := mission.New(
		mission.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
		mission.WithObserver(p),
	)
	s.Start(types.MissionHandle{ID: "m-1", Endpoint: "ws://agent/ws/m-1"})
	s.Connected()
	s.HandleFrame([]byte(`{"type":"action","iteration":1,"thought_process":"look","reasoning":"shop A is cheap","action":{"name":"navigate"}}`))
	s.HandleFrame([]byte(`{"type":"complete","summary":"done","extracted_data":[{"url":"https://a","title":"Shop A","prices":[10,30]}]}`))

	out := buf.String()
	for _, want := range []string{
		"Connected to server",
		"[1] navigate: look",
		"shop A is cheap",
		"1 records from 1 sources, 2 prices, average R$ 20,00",
		"Shop A (2 prices)",
		"Completed: done",
		"COMPLETE",
		"mission ended",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinterSkipsReasoningUnlessVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.OnLogAppended(types.LogEntry{Type: "action", Reasoning: "hidden"})
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("reasoning printed without verbose:\n%s", buf.String())
	}
}

func TestPrinterRecordsWithoutTitle(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	var records []protocol.Record
	if err := json.Unmarshal([]byte(`[{"url":"https://b","prices":[]}]`), &records); err != nil {
		t.Fatal(err)
	}
	p.OnRecordsReplaced(records)
	if !strings.Contains(buf.String(), "https://b (0 prices)") {
		t.Errorf("expected url as title:\n%s", buf.String())
	}
}
