// Package transport carries raw mission stream frames from the network to the
// core as messages on a channel.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when using a connection after Close.
var ErrClosed = errors.New("transport: connection closed")

// MessageKind tells a frame apart from the two ways a stream can end.
type MessageKind int

const (
	// Frame carries one text message in Data.
	Frame MessageKind = iota
	// Failure reports a connection-level error in Err. It is the last message.
	Failure
	// Closed reports an orderly close by the peer. It is the last message.
	Closed
)

func (k MessageKind) String() string {
	switch k {
	case Frame:
		return "frame"
	case Failure:
		return "failure"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type Message struct {
	Kind MessageKind
	Data []byte
	Err  error
}

// Conn is one open stream. Messages are delivered in arrival order; the
// channel is closed after the final Failure or Closed message, or once Close
// has been called.
type Conn interface {
	Messages() <-chan Message
	Close() error
}

// Dialer opens a stream for a mission endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}
