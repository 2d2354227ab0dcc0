package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the write side of a session's transport. The concrete websocket
// implementation is wrapped so the registry, broadcaster, and tests can work
// against fakes.
type Conn interface {
	// WriteJSON sends a JSON message to the client (thread-safe).
	WriteJSON(v interface{}) error
	// Close closes the connection and releases resources.
	Close() error
	// ID returns the opaque connection identifier.
	ID() string
}

// Connection wraps a gorilla websocket connection. All writes are funneled
// through a single writer goroutine so concurrent replies and broadcasts
// never race on the underlying socket.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

const (
	writeBufferSize = 100
	writeTimeout    = 5 * time.Second
)

// NewConnection wraps an upgraded websocket connection and starts its
// writer goroutine. The connection id is generated server-side.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, writeBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the server-generated connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// writeLoop is the single writer for the underlying socket. The channel is
// never closed; senders unblock through the connection context instead, so a
// late WriteJSON can never hit a closed channel.
func (c *Connection) writeLoop() {
	// A write failure makes the connection unusable for later senders too.
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON message for delivery. Fails fast once the
// connection is closed and bounds the wait when the write buffer is full.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts down the connection exactly once. Safe to call from any
// goroutine and from multiple cleanup paths.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
