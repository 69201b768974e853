package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/user/marketradar/internal/types"
)

// wireFrame mirrors the JSON the agent server emits. Pointer fields stay nil
// when the key is absent so counters are never coerced to zero.
type wireFrame struct {
	Type               *string           `json:"type"`
	Message            string            `json:"message"`
	URL                string            `json:"url"`
	Iteration          *int              `json:"iteration"`
	ThoughtProcess     string            `json:"thought_process"`
	Reasoning          string            `json:"reasoning"`
	Action             *types.ActionCall `json:"action"`
	ExtractedDataCount *int              `json:"extracted_data_count"`
	Summary            string            `json:"summary"`
	TotalIterations    *int              `json:"total_iterations"`
	ExtractedData      []Record          `json:"extracted_data"`
}

// Decode parses one raw frame and classifies it by its "type" field.
// Every failure is returned as a *ProtocolError.
func Decode(frame []byte) (Event, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, &ProtocolError{Reason: "empty frame"}
	}
	if trimmed[0] != '{' {
		return nil, &ProtocolError{Reason: "frame is not a JSON object"}
	}

	var wire wireFrame
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, &ProtocolError{Reason: "malformed frame", Err: err}
	}
	if wire.Type == nil || *wire.Type == "" {
		return nil, &ProtocolError{Reason: "missing event type"}
	}

	switch kind := Kind(*wire.Type); kind {
	case KindStatus:
		return StatusEvent{Message: wire.Message, URL: wire.URL}, nil
	case KindAction:
		return ActionEvent{
			Iteration:      wire.Iteration,
			Thought:        wire.ThoughtProcess,
			Reasoning:      wire.Reasoning,
			Action:         wire.Action,
			URL:            wire.URL,
			ExtractedCount: wire.ExtractedDataCount,
		}, nil
	case KindComplete:
		return CompleteEvent{
			Summary:         wire.Summary,
			TotalIterations: wire.TotalIterations,
			Records:         nonNil(wire.ExtractedData),
		}, nil
	case KindIncomplete:
		return IncompleteEvent{
			Message: wire.Message,
			Summary: wire.Summary,
			Records: nonNil(wire.ExtractedData),
		}, nil
	case KindError:
		return ErrorEvent{Message: wire.Message}, nil
	default:
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("unknown event type %q", *wire.Type),
			Type:   *wire.Type,
		}
	}
}

func nonNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}
