package radar

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

func TestArchiveReport(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(t.TempDir())

	handle := types.MissionHandle{ID: "a1b2c3d4e5", Endpoint: "ws://agent/ws/a1b2c3d4e5"}
	if _, err := archive.Missions.Create(ctx, handle, "rice 5kg", "cli"); err != nil {
		t.Fatal(err)
	}
	for _, e := range []types.LogEntry{
		{MissionID: handle.ID, Type: "system", Message: "Connected to server"},
		{MissionID: handle.ID, Type: "complete", Summary: "Found two offers"},
	} {
		entry := e
		if err := archive.Journal.Append(ctx, &entry); err != nil {
			t.Fatal(err)
		}
	}

	idx, err := archive.Mission(ctx, "a1b2")
	if err != nil {
		t.Fatalf("resolve prefix: %v", err)
	}

	// no snapshot yet
	records, err := archive.RecordSet(ctx, idx.MissionID)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty record set, got %v, %v", records, err)
	}

	var recs []protocol.Record
	if err := json.Unmarshal([]byte(`[{"url":"https://a","title":"A","prices":[10,20]}]`), &recs); err != nil {
		t.Fatal(err)
	}
	if err := archive.Records.Put(ctx, idx.MissionID, recs); err != nil {
		t.Fatal(err)
	}

	entries, err := archive.Entries(ctx, idx.MissionID, 1)
	if err != nil || len(entries) != 1 || entries[0].Type != "complete" {
		t.Fatalf("expected last entry only, got %+v, %v", entries, err)
	}

	rep, err := archive.Report(ctx, idx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Goal != "rice 5kg" || rep.Summary != "Found two offers" {
		t.Errorf("unexpected report header %q / %q", rep.Goal, rep.Summary)
	}
	if !rep.HasAverage || rep.Average != 15 {
		t.Errorf("expected average 15, got %v (%v)", rep.Average, rep.HasAverage)
	}
	if len(rep.Sources) != 1 || !strings.HasPrefix(rep.Sources[0].URL, "https://a") {
		t.Errorf("unexpected sources %+v", rep.Sources)
	}
}
