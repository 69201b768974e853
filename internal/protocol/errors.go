package protocol

import (
	"errors"
	"fmt"
)

// ProtocolError reports a frame that could not be turned into an Event.
type ProtocolError struct {
	Reason string
	Type   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error: %s (%v)", e.Reason, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// AsProtocolError extracts a *ProtocolError from err's chain.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
