package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-chat-engine/internal/metrics"
	"go-chat-engine/internal/user"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a frame to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 16 * 1024           // Largest inbound frame accepted from the peer.
	sendBuffer     = 256
)

// Client is one authenticated websocket connection.
type Client struct {
	conn     *websocket.Conn
	identity user.Identity
	send     chan []byte

	mu      sync.Mutex
	closed  bool
	current string // conversation id last opened, "" for none
}

// NewClient builds a client for identity. conn may be nil when the client is
// driven directly through the Engine.
func NewClient(conn *websocket.Conn, identity user.Identity) *Client {
	return &Client{
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBuffer),
	}
}

func (c *Client) Identity() user.Identity { return c.identity }

// Outbound exposes the queue of encoded frames waiting to be written.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Current returns the conversation the client last opened.
func (c *Client) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(convID string) {
	c.mu.Lock()
	c.current = convID
	c.mu.Unlock()
}

// deliver queues frame without blocking. A client whose queue is full is a
// slow consumer: its queue is closed, which makes writePump hang up.
func (c *Client) deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.closed = true
		close(c.send)
		metrics.SlowConsumers.Inc()
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump feeds inbound frames to the engine until the connection fails.
func (c *Client) readPump(e *Engine) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		e.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				e.logger.Warn().Err(err).Str("user", c.identity.Username).Msg("websocket read failed")
			}
			return
		}
		e.HandleFrame(ctx, c, frame)
	}
}

// writePump writes queued frames, one websocket message each, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
