package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"workspace-service/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Identity is the authenticated user behind a connection, supplied by the
// handshake and trusted as already-verified.
type Identity struct {
	UserID    string
	UserName  string
	UserColor string
}

// Client is one live transport session for one authenticated user.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity Identity

	// Current workspace subscription (at most one) and the resources this
	// connection has joined for presence. Mutated only from the hub loop.
	workspaceID string
	joined      map[string]protocol.ResourceType

	// Connection state management
	closed     int32 // atomic flag to track if client is closed
	sendClosed int32 // atomic flag to track if send channel is closed
	done       chan struct{}

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		identity: identity,
		joined:   make(map[string]protocol.ResourceType),
		done:     make(chan struct{}),
	}
}

func (c *Client) GetID() string {
	return c.id
}

func (c *Client) GetUserID() string {
	return c.identity.UserID
}

// isClosed returns true if the client is closed
func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and unblocks its goroutines. Closing the
// underlying conn forces a blocked ReadMessage to return so the read pump can
// run its unregister path.
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
		slog.Debug("Client marked as closed", "clientID", c.id, "userID", c.identity.UserID)
	}
}

// closeSendChannel safely closes the send channel
func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		close(c.send)
	}
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "clientID", c.id, "userID", c.identity.UserID)
		}

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			}
			break
		}

		msg, err := protocol.DecodeMessage(frame)
		if err != nil {
			// Malformed frames are dropped, never fatal to the connection.
			slog.Error("Failed to decode message", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			slog.Error("Invalid message", "clientID", c.id, "userID", c.identity.UserID, "error", err)
			continue
		}

		select {
		case c.hub.handleMessage <- &clientMessage{client: c, message: msg}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending message to hub", "clientID", c.id, "userID", c.identity.UserID)
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// SendEvent serializes the event and queues it for delivery. Delivery is
// at-most-once: a closed client or a full send buffer drops the event.
func (c *Client) SendEvent(event *protocol.WorkspaceEvent) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	frame, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

func (c *Client) sendFrame(frame []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClientDisconnected
	default:
		// Send buffer is full; a consumer this slow is better off resyncing
		// over a fresh connection.
		slog.Warn("Send buffer full, closing client", "clientID", c.id, "userID", c.identity.UserID)
		c.close()
		return ErrClientDisconnected
	}
}
