package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/amfajardoo/project-code-editor/internal/metrics"
)

// sendQueueSize bounds the per-connection outbound queue. A member that
// falls this far behind is closed rather than allowed to stall the room.
const sendQueueSize = 256

// Client is one admitted WebSocket connection. Outbound messages go through
// a buffered queue drained by the write pump, so broadcasts never block on
// a peer.
type Client struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for an accepted connection bound to roomName.
func NewClient(conn *websocket.Conn, roomName string) *Client {
	return &Client{
		id:   uuid.New().String(),
		room: roomName,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// ID returns the connection identity.
func (c *Client) ID() string {
	return c.id
}

// Room returns the name of the room this connection belongs to.
func (c *Client) Room() string {
	return c.room
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the outbound queue drained by the write pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Send queues data for delivery. If the queue is full the client is closed:
// a peer that cannot keep up must not hold messages for the rest of the
// room.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		metrics.SendsDropped.Inc()
		c.closeLocked()
	}
}

// Close closes the outbound queue. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
