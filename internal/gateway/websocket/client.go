package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"convwin/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Client frames are small control messages.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	threads     map[string]bool
	id          string
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		threads:     make(map[string]bool),
		id:          uuid.New().String(),
		connectedAt: time.Now(),
	}
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
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

// readPump pumps messages from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes one client frame.
func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("INVALID_MESSAGE", "failed to parse message")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		if msg.Thread == "" {
			c.sendError("INVALID_REQUEST", "subscribe requires thread")
			return
		}
		c.hub.Subscribe(c, msg.Thread)

	case TypeUnsubscribe:
		if msg.Thread != "" {
			c.hub.Unsubscribe(c, msg.Thread)
		}

	case TypePing:
		c.sendFrame(WSMessage{Type: TypePong})

	default:
		logger.Debug().
			Str("client_id", c.id).
			Str("type", msg.Type).
			Msg("Unknown message type")
		c.sendError("UNKNOWN_TYPE", "unknown message type: "+msg.Type)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error().Err(err).Str("client_id", c.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendFrame(msg WSMessage) {
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (c *Client) sendError(code, message string) {
	c.sendFrame(WSMessage{Type: TypeError, Code: code, Message: message})
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
