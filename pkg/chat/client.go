package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16 * 1024
)

// Client is a middleman between the websocket connection and the relay. It
// carries no identity: every event it sends is authenticated on its own.
type Client struct {
	ID string

	// The websocket connection. Nil for clients that are not backed by a socket.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	done   chan struct{}
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	disconnected atomic.Bool
}

func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Deliver queues payload without blocking. It reports false when the client
// is closing or its buffer is full; the frame is then lost.
func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Context is cancelled when the client closes.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Close stops the write pump, which closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// readPump pumps frames from the websocket connection to the relay, one at a
// time, so a connection's events are handled in arrival order.
func (c *Client) readPump(relay *Relay) {
	defer func() {
		relay.Disconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				relay.log.Warn("Unexpected websocket close", "conn_id", c.ID, "error", err)
			}
			return
		}
		relay.Dispatch(c, frame)
	}
}

// writePump pumps frames from the relay to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
