package mission

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

type recorder struct {
	entries  []types.LogEntry
	replaced [][]protocol.Record
	ended    []Status
}

func (r *recorder) OnLogAppended(entry types.LogEntry)           { r.entries = append(r.entries, entry) }
func (r *recorder) OnRecordsReplaced(records []protocol.Record) { r.replaced = append(r.replaced, records) }
func (r *recorder) OnMissionEnded(status Status)                 { r.ended = append(r.ended, status) }

var testHandle = types.MissionHandle{ID: "m-1", Endpoint: "ws://localhost:8000/ws/m-1"}

func newRunning(t *testing.T) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(WithObserver(rec), WithClock(func() time.Time { return fixed }))
	s.Start(testHandle)
	if !s.Connected() {
		t.Fatal("expected Connected to open the session")
	}
	return s, rec
}

func TestConnectedAppendsSystemEntry(t *testing.T) {
	s, rec := newRunning(t)
	if s.Status() != StatusRunning {
		t.Fatalf("expected running, got %s", s.Status())
	}
	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Type != "system" || e.Message != MessageConnected {
		t.Errorf("unexpected connect entry %+v", e)
	}
	if e.Seq != 1 || e.MissionID != "m-1" || e.ID == "" {
		t.Errorf("expected stamped entry, got %+v", e)
	}
	if len(rec.entries) != 1 {
		t.Errorf("expected observer to see 1 entry, got %d", len(rec.entries))
	}
	if s.Connected() {
		t.Error("expected second Connected to be ignored")
	}
}

func TestConnectedRequiresMission(t *testing.T) {
	s := New()
	if s.Connected() {
		t.Error("expected Connected without a mission to be ignored")
	}
	if s.Status() != StatusIdle {
		t.Errorf("expected idle, got %s", s.Status())
	}
}

func TestLogLengthIsFramesPlusOne(t *testing.T) {
	s, _ := newRunning(t)
	frames := []string{
		`{"type":"status","message":"a"}`,
		`{"type":"action","iteration":1,"thought_process":"t","reasoning":"r","action":{"name":"navigate"}}`,
		`{"type":"status","message":"b","url":"https://x"}`,
		`{"type":"action","iteration":2,"thought_process":"t2","reasoning":"r2","action":{"name":"extract"}}`,
	}
	for _, f := range frames {
		if s.HandleFrame([]byte(f)) {
			t.Fatalf("frame %s should not end the stream", f)
		}
	}
	entries := s.Entries()
	if len(entries) != len(frames)+1 {
		t.Fatalf("expected %d entries, got %d", len(frames)+1, len(entries))
	}
	wantTypes := []string{"system", "status", "action", "status", "action"}
	for i, e := range entries {
		if e.Type != wantTypes[i] {
			t.Errorf("entry %d: expected %s, got %s", i, wantTypes[i], e.Type)
		}
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
	if entries[2].Iteration == nil || *entries[2].Iteration != 1 || entries[2].Action.Name != "navigate" {
		t.Errorf("unexpected action entry %+v", entries[2])
	}
}

func TestCompleteFlushesRecordsAndEnds(t *testing.T) {
	s, rec := newRunning(t)
	ended := s.HandleFrame([]byte(`{"type":"complete","summary":"done","total_iterations":4,
		"extracted_data":[{"url":"https://a","prices":[10]}]}`))
	if !ended {
		t.Fatal("expected complete to end the stream")
	}
	if s.Status() != StatusComplete {
		t.Errorf("expected complete, got %s", s.Status())
	}
	if got := s.Records(); len(got) != 1 || got[0].URL != "https://a" {
		t.Errorf("unexpected records %+v", got)
	}
	if s.Summary() != "done" {
		t.Errorf("expected summary done, got %q", s.Summary())
	}
	last := s.Entries()[1]
	if last.Message != MessageCompleted || last.TotalIterations == nil || *last.TotalIterations != 4 {
		t.Errorf("unexpected completion entry %+v", last)
	}
	if len(rec.replaced) != 1 || len(rec.ended) != 1 || rec.ended[0] != StatusComplete {
		t.Errorf("expected one replace and one end, got %d/%v", len(rec.replaced), rec.ended)
	}
}

func TestCompleteThenCloseStaysComplete(t *testing.T) {
	s, _ := newRunning(t)
	s.HandleFrame([]byte(`{"type":"complete","summary":"ok","total_iterations":1}`))
	if s.Disconnected() {
		t.Error("expected disconnect after complete to be a no-op")
	}
	if s.Status() != StatusComplete {
		t.Errorf("expected complete, got %s", s.Status())
	}
}

func TestIncompleteFlushesRecords(t *testing.T) {
	s, rec := newRunning(t)
	s.HandleFrame([]byte(`{"type":"incomplete","message":"limit reached","extracted_data":[{"url":"u"}]}`))
	if s.Status() != StatusComplete {
		t.Errorf("expected complete, got %s", s.Status())
	}
	if len(s.Records()) != 1 {
		t.Errorf("expected 1 record, got %d", len(s.Records()))
	}
	last := s.Entries()[1]
	if last.Type != "incomplete" || last.Message != "limit reached" {
		t.Errorf("unexpected incomplete entry %+v", last)
	}
	if len(rec.ended) != 1 {
		t.Errorf("expected one end callback, got %d", len(rec.ended))
	}
}

func TestAgentErrorDoesNotFlush(t *testing.T) {
	s, rec := newRunning(t)
	s.HandleFrame([]byte(`{"type":"error","message":"browser crashed"}`))
	if s.Status() != StatusError {
		t.Errorf("expected error, got %s", s.Status())
	}
	if len(rec.replaced) != 0 {
		t.Errorf("expected no record flush, got %d", len(rec.replaced))
	}
	if got := s.Entries()[1].Message; got != "browser crashed" {
		t.Errorf("expected verbatim message, got %q", got)
	}
	if len(rec.ended) != 1 || rec.ended[0] != StatusError {
		t.Errorf("expected error end callback, got %v", rec.ended)
	}
}

func TestUnknownTypeProducesOneErrorEntry(t *testing.T) {
	s, rec := newRunning(t)
	if !s.HandleFrame([]byte(`{"type":"telemetry","cpu":3}`)) {
		t.Fatal("expected protocol error to end the stream")
	}
	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Type != "error" || !strings.Contains(entries[1].Message, "telemetry") {
		t.Errorf("unexpected error entry %+v", entries[1])
	}
	if s.Status() != StatusError {
		t.Errorf("expected error, got %s", s.Status())
	}
	if len(rec.ended) != 1 {
		t.Errorf("expected one end callback, got %d", len(rec.ended))
	}
}

func TestMalformedFrameProducesErrorEntry(t *testing.T) {
	s, _ := newRunning(t)
	s.HandleFrame([]byte(`{"type":`))
	if s.Status() != StatusError {
		t.Errorf("expected error, got %s", s.Status())
	}
	if n := len(s.Entries()); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestNoInputAfterTerminal(t *testing.T) {
	s, rec := newRunning(t)
	s.HandleFrame([]byte(`{"type":"error","message":"x"}`))
	if s.HandleFrame([]byte(`{"type":"status","message":"late"}`)) {
		t.Error("expected late frame to be ignored")
	}
	if s.HandleFrame([]byte(`garbage`)) {
		t.Error("expected late garbage to be ignored")
	}
	if s.TransportFailed(errors.New("reset")) {
		t.Error("expected late transport failure to be ignored")
	}
	if n := len(s.Entries()); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
	if len(rec.ended) != 1 {
		t.Errorf("expected exactly one end callback, got %d", len(rec.ended))
	}
}

func TestTransportFailedWhileRunning(t *testing.T) {
	s, rec := newRunning(t)
	if !s.TransportFailed(errors.New("connection reset")) {
		t.Fatal("expected transport failure to end the stream")
	}
	last := s.Entries()[1]
	if last.Type != "error" || last.Message != MessageTransportFailed {
		t.Errorf("expected generic failure entry, got %+v", last)
	}
	if s.Status() != StatusError || len(rec.ended) != 1 {
		t.Errorf("expected error end, got %s / %v", s.Status(), rec.ended)
	}
}

func TestTransportFailedBeforeOpen(t *testing.T) {
	s := New()
	s.Start(testHandle)
	if !s.TransportFailed(errors.New("dial refused")) {
		t.Fatal("expected dial failure to end the mission")
	}
	if s.Status() != StatusError {
		t.Errorf("expected error, got %s", s.Status())
	}
}

func TestDisconnectWhileRunningFallsBackToIdle(t *testing.T) {
	s, rec := newRunning(t)
	s.HandleFrame([]byte(`{"type":"status","message":"working"}`))
	if !s.Disconnected() {
		t.Fatal("expected disconnect fallback")
	}
	if s.Status() != StatusIdle {
		t.Errorf("expected idle, got %s", s.Status())
	}
	if len(rec.ended) != 0 {
		t.Errorf("expected no end callback on fallback, got %v", rec.ended)
	}
	if s.TransportFailed(errors.New("late")) {
		t.Error("expected transport failure after fallback to be ignored")
	}
}

func TestStartResetsFromAnyStatus(t *testing.T) {
	for _, last := range []string{
		`{"type":"complete","summary":"s","total_iterations":1,"extracted_data":[{"url":"a"}]}`,
		`{"type":"error","message":"boom"}`,
		`{"type":"status","message":"still going"}`,
	} {
		s, _ := newRunning(t)
		s.HandleFrame([]byte(last))
		s.Start(types.MissionHandle{ID: "m-2"})
		if s.Status() != StatusIdle {
			t.Errorf("expected idle after start, got %s", s.Status())
		}
		if len(s.Entries()) != 0 || len(s.Records()) != 0 || s.Summary() != "" {
			t.Errorf("expected cleared session after %s", last)
		}
		if s.Handle().ID != "m-2" {
			t.Errorf("expected new handle, got %s", s.Handle().ID)
		}
		if !s.Connected() || s.Entries()[0].Seq != 1 {
			t.Error("expected a fresh log after reset")
		}
	}
}

func TestRecordsReturnsCopy(t *testing.T) {
	s, rec := newRunning(t)
	s.HandleFrame([]byte(`{"type":"complete","summary":"s","total_iterations":1,"extracted_data":[{"url":"a"}]}`))
	got := s.Records()
	got[0].URL = "mutated"
	if s.Records()[0].URL != "a" {
		t.Error("expected Records to return a copy")
	}
	if rec.replaced[0][0].URL != "a" {
		t.Error("expected observer slice to be unaffected")
	}
}

func TestObserverFuncsAndFanOut(t *testing.T) {
	var logs int
	var ended Status
	first := &recorder{}
	s := New(WithObserver(Observers{first, ObserverFuncs{
		LogAppended:  func(types.LogEntry) { logs++ },
		MissionEnded: func(st Status) { ended = st },
	}}))
	s.Start(testHandle)
	s.Connected()
	s.Apply(protocol.ErrorEvent{Message: "x"})
	if logs != 2 || len(first.entries) != 2 {
		t.Errorf("expected both observers to see 2 entries, got %d/%d", logs, len(first.entries))
	}
	if ended != StatusError {
		t.Errorf("expected error end, got %s", ended)
	}
}

func TestApplyIgnoredWhenIdle(t *testing.T) {
	s := New()
	s.Start(testHandle)
	if s.Apply(protocol.StatusEvent{Message: "early"}) {
		t.Error("expected idle session to ignore events")
	}
	if len(s.Entries()) != 0 {
		t.Errorf("expected no entries, got %d", len(s.Entries()))
	}
}

func TestParseStatus(t *testing.T) {
	if ParseStatus("complete") != StatusComplete || ParseStatus("bogus") != StatusIdle {
		t.Error("unexpected ParseStatus mapping")
	}
	if !StatusError.Terminal() || StatusRunning.Terminal() {
		t.Error("unexpected Terminal classification")
	}
}
