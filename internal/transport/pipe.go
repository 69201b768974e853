package transport

import (
	"context"
	"sync"
)

// Pipe is an in-memory Conn whose remote end is driven by the caller. It
// stands in for a network stream wherever frames come from another source.
type Pipe struct {
	messages chan Message
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	ended    bool
}

func NewPipe() *Pipe {
	return &Pipe{
		messages: make(chan Message),
		done:     make(chan struct{}),
	}
}

func (p *Pipe) Messages() <-chan Message { return p.messages }

// Close stops delivery. Pending sends return ErrClosed.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Closed reports whether Close has been called.
func (p *Pipe) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Send delivers one frame, blocking until it is received or the pipe closes.
func (p *Pipe) Send(ctx context.Context, data []byte) error {
	return p.send(ctx, Message{Kind: Frame, Data: data}, false)
}

// Fail ends the stream with a connection failure.
func (p *Pipe) Fail(ctx context.Context, err error) error {
	return p.send(ctx, Message{Kind: Failure, Err: err}, true)
}

// Hangup ends the stream with an orderly close from the remote side.
func (p *Pipe) Hangup(ctx context.Context) error {
	return p.send(ctx, Message{Kind: Closed}, true)
}

func (p *Pipe) send(ctx context.Context, msg Message, last bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended || p.Closed() {
		return ErrClosed
	}
	select {
	case p.messages <- msg:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if last {
		p.ended = true
		close(p.messages)
	}
	return nil
}

// PipeDialer hands out pipes in dial order and records the endpoints dialed.
type PipeDialer struct {
	mu        sync.Mutex
	pipes     []*Pipe
	endpoints []string
	err       error
	dialed    chan *Pipe
}

func NewPipeDialer() *PipeDialer {
	return &PipeDialer{dialed: make(chan *Pipe, 16)}
}

// FailWith makes subsequent dials return err.
func (d *PipeDialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *PipeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	if d.err != nil {
		return nil, d.err
	}
	p := NewPipe()
	d.pipes = append(d.pipes, p)
	select {
	case d.dialed <- p:
	default:
	}
	return p, nil
}

// Dialed delivers each pipe as it is dialed.
func (d *PipeDialer) Dialed() <-chan *Pipe { return d.dialed }

// Endpoints returns every endpoint dialed so far.
func (d *PipeDialer) Endpoints() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.endpoints...)
}
