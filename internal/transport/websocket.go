package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"
)

// DefaultOrigin is sent when the dialer has no Origin configured.
const DefaultOrigin = "http://localhost"

// WebSocketDialer opens mission streams over WebSocket.
type WebSocketDialer struct {
	Origin string
	Logger *slog.Logger
}

func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{Origin: DefaultOrigin, Logger: slog.Default()}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &wsConn{
		ws:       ws,
		messages: make(chan Message),
		done:     make(chan struct{}),
		logger:   logger.With("endpoint", endpoint),
	}
	go c.read()
	return c, nil
}

type wsConn struct {
	ws       *websocket.Conn
	messages chan Message
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (c *wsConn) Messages() <-chan Message { return c.messages }

// read pumps frames until the socket fails, closes, or Close is called.
func (c *wsConn) read() {
	defer close(c.messages)
	for {
		var data []byte
		err := websocket.Message.Receive(c.ws, &data)
		if err != nil {
			msg := Message{Kind: Failure, Err: err}
			if errors.Is(err, io.EOF) {
				msg = Message{Kind: Closed}
			}
			c.logger.Debug("websocket reader stopped", "kind", msg.Kind, "error", err)
			c.deliver(msg)
			return
		}
		if !c.deliver(Message{Kind: Frame, Data: data}) {
			return
		}
	}
}

// deliver hands a message to the consumer unless the connection was closed.
func (c *wsConn) deliver(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.messages <- msg:
		return true
	case <-c.done:
		return false
	}
}

// Close stops delivery and closes the socket. It is safe to call more than once.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
