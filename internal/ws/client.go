package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

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

// ErrClientGone indicates the client's send queue is closed or full.
var ErrClientGone = errors.New("ws: client gone")

// Command is a client-to-server message controlling feed subscriptions and
// submitting comments or chat messages.
type Command struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes a single inbound command for a client.
type CommandHandler func(client *Client, cmd Command)

// Client represents one user's realtime connection.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	hub     *Hub
	handler CommandHandler
	logger  *slog.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	onClose   func()
}

// NewClient wraps an upgraded connection. The handler receives every decoded
// inbound command; onClose runs exactly once when the connection tears down.
func NewClient(conn *websocket.Conn, userID string, hub *Hub, handler CommandHandler, onClose func(), logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		hub:     hub,
		handler: handler,
		logger:  logger,
		onClose: onClose,
	}
}

// UserID returns the user this connection is authenticated as.
func (c *Client) UserID() string {
	return c.userID
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Send queues an event for delivery to this client. Feed snapshot goroutines
// keep calling this during teardown, so the queue must stay guarded against
// the shutdown that closes it.
func (c *Client) Send(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientGone
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientGone
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Warn("malformed command", slog.String("user_id", c.userID))
			continue
		}
		if c.handler != nil {
			c.handler(c, cmd)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued events in the same frame batch.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

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
