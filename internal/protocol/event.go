// Package protocol decodes the frames a mission stream delivers into typed events.
package protocol

import (
	"github.com/user/marketradar/internal/types"
)

// Kind is the wire discriminant carried in every frame's "type" field.
type Kind string

const (
	KindStatus     Kind = "status"
	KindAction     Kind = "action"
	KindComplete   Kind = "complete"
	KindIncomplete Kind = "incomplete"
	KindError      Kind = "error"

	// KindSystem never arrives over the wire; the client synthesizes it.
	KindSystem Kind = "system"
)

// Terminal reports whether an event of this kind ends a mission stream.
func (k Kind) Terminal() bool {
	switch k {
	case KindComplete, KindIncomplete, KindError:
		return true
	default:
		return false
	}
}

// Event is one decoded stream message. The concrete type is one of the
// *Event structs below; switch on it with a type switch.
type Event interface {
	Kind() Kind
}

type StatusEvent struct {
	Message string
	URL     string
}

type ActionEvent struct {
	Iteration      *int
	Thought        string
	Reasoning      string
	Action         *types.ActionCall
	URL            string
	ExtractedCount *int
}

type CompleteEvent struct {
	Summary         string
	TotalIterations *int
	Records         []Record
}

// IncompleteEvent is a graceful partial result, not a failure.
type IncompleteEvent struct {
	Message string
	Summary string
	Records []Record
}

type ErrorEvent struct {
	Message string
}

type SystemEvent struct {
	Message string
}

func (StatusEvent) Kind() Kind     { return KindStatus }
func (ActionEvent) Kind() Kind     { return KindAction }
func (CompleteEvent) Kind() Kind   { return KindComplete }
func (IncompleteEvent) Kind() Kind { return KindIncomplete }
func (ErrorEvent) Kind() Kind      { return KindError }
func (SystemEvent) Kind() Kind     { return KindSystem }
