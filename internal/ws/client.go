package ws

import (
	"encoding/json"
	"time"

	"nftflip/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	sendBuffer = 64
)

// Client is one live websocket connection. An identity (wallet
// address) may own several clients at once (multi-tab); each client
// subscribes to at most one room.
type Client struct {
	ID      string
	Address string
	Conn    *websocket.Conn
	Send    chan []byte

	Hub  *Hub
	Done chan struct{}

	// roomID is owned by the hub and guarded by its mutex
	roomID string
}

func NewClient(id, address string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:      id,
		Address: address,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Hub:     hub,
		Done:    make(chan struct{}),
	}
}

func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.OnDisconnect(c)
		// closing the socket forces the next write or ping to fail, so
		// writePump winds down with the read side
		c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			logger.Debug("ws read closed", "conn", c.ID, "error", err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.SendMessage(Message{Type: MsgError, Payload: ErrorPayload{
				Code:    "bad_envelope",
				Message: "messages must be {type, payload} JSON",
			}})
			continue
		}
		c.Hub.HandleInbound(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message, dropping it if the connection's buffer
// is full. A stale client only ever degrades its own delivery.
func (c *Client) SendMessage(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("ws marshal failed", "type", msg.Type, "error", err)
		return false
	}
	return c.sendRaw(data)
}

func (c *Client) sendRaw(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}
