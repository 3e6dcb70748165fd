package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"IMSync/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one live websocket session. Outbound frames go through a bounded
// queue drained by a single write pump; a full queue drops the frame rather
// than blocking the broadcaster, the client heals the gap on resync.
type Client struct {
	ConnID   string
	UserID   string
	UserName string

	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID, userID, userName string, ws *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		UserName: userName,
		ws:       ws,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue hands a marshaled frame to the write pump. Non-blocking.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		logger.Warnf("[gateway] send queue full, dropping frame conn=%s user=%s", c.ConnID, c.UserID)
		return false
	}
}

// arm sets the read deadline and pong handler. Must run before the read loop
// and the write pump start; gorilla handlers are not safe to install
// concurrently with ReadMessage.
func (c *Client) arm() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Read blocks for the next inbound frame.
func (c *Client) Read() ([]byte, error) {
	_, raw, err := c.ws.ReadMessage()
	if err == nil {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
	return raw, err
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings. Runs until Close or a write error.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warnf("[gateway] write failed conn=%s user=%s err=%v", c.ConnID, c.UserID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}
