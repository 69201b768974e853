package mission

import (
	"github.com/user/marketradar/internal/protocol"
	"github.com/user/marketradar/internal/types"
)

// Observer receives session changes. Callbacks run on the goroutine that
// drives the session, in the order the changes happened, and must not block
// for long or feed input back into the session synchronously.
type Observer interface {
	// OnLogAppended fires once per decoded or synthesized event.
	OnLogAppended(entry types.LogEntry)
	// OnRecordsReplaced fires once per complete or incomplete event with the
	// full replacement record set.
	OnRecordsReplaced(records []protocol.Record)
	// OnMissionEnded fires once per terminal event, including transport and
	// protocol failures.
	OnMissionEnded(status Status)
}

// Observers fans every callback out to each member in order.
type Observers []Observer

func (o Observers) OnLogAppended(entry types.LogEntry) {
	for _, obs := range o {
		obs.OnLogAppended(entry)
	}
}

func (o Observers) OnRecordsReplaced(records []protocol.Record) {
	for _, obs := range o {
		obs.OnRecordsReplaced(records)
	}
}

func (o Observers) OnMissionEnded(status Status) {
	for _, obs := range o {
		obs.OnMissionEnded(status)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	LogAppended     func(types.LogEntry)
	RecordsReplaced func([]protocol.Record)
	MissionEnded    func(Status)
}

func (f ObserverFuncs) OnLogAppended(entry types.LogEntry) {
	if f.LogAppended != nil {
		f.LogAppended(entry)
	}
}

func (f ObserverFuncs) OnRecordsReplaced(records []protocol.Record) {
	if f.RecordsReplaced != nil {
		f.RecordsReplaced(records)
	}
}

func (f ObserverFuncs) OnMissionEnded(status Status) {
	if f.MissionEnded != nil {
		f.MissionEnded(status)
	}
}
