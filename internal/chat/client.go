package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Whiteboard snapshots can be large.
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	ID       string
	UserID   string
	Username string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// authed flips when the authenticate event binds the session. Only
	// touched on the read goroutine.
	authed bool
	closed chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump. A client whose buffer is full is
// considered too slow to keep; the frame is dropped rather than blocking the
// caller.
func (c *Client) enqueue(frame []byte) {
	select {
	case <-c.closed:
	case c.send <- frame:
	default:
		c.hub.log.Warn("dropping frame for slow client", "conn", c.ID, "user", c.UserID)
	}
}

// closeSend signals the write pump to finish. Safe to call more than once.
func (c *Client) closeSend() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// ReadPump pumps frames from the websocket into the hub's dispatcher. One
// goroutine per connection: events from this connection are handled in send
// order and never overlap.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("read error", "conn", c.ID, "err", err)
			}
			return
		}
		c.hub.HandleEvent(ctx, c, frame)
	}
}

// WritePump pumps frames from the send buffer to the websocket and keeps
// the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)
			if err := w.Close(); err != nil {
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
