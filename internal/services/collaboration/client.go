package collaboration

import (
	"context"
	"sync"
	"time"

	"docsync/internal/logging"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one websocket connection. It implements Conn.
//
// Outbound messages are queued on a buffered channel and written by
// WritePump; the read side runs in ReadPump. Close only signals; WritePump
// flushes what is queued and closes the socket, which in turn ends ReadPump.
type Client struct {
	id      string
	ws      *websocket.Conn
	manager *SessionManager
	logger  logging.Logger

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once

	maxMessageBytes int64
}

// NewClient wraps an upgraded websocket connection.
func NewClient(ws *websocket.Conn, manager *SessionManager, sendBuffer int, maxMessageBytes int64) *Client {
	id := ksuid.New().String()
	return &Client{
		id:              id,
		ws:              ws,
		manager:         manager,
		logger:          manager.logger.With("connection.id", id),
		send:            make(chan []byte, sendBuffer),
		closing:         make(chan struct{}),
		maxMessageBytes: maxMessageBytes,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues msg for writing. It never blocks.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks WritePump to flush and close the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
}

// ReadPump reads frames until the socket fails or closes, dispatching each
// one, then tears the connection down.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.manager.Disconnect(c.id)
		c.Close()
	}()

	// Learning: the deadline is pushed forward by every frame and every
	// pong, so a peer that stops answering pings fails ReadMessage
	c.ws.SetReadLimit(c.maxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warnf("WebSocket error on %s: %v", c.id, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		c.manager.HandleMessage(ctx, c, message)
	}
}

// WritePump writes queued messages, one JSON document per text frame, and
// pings the peer to keep the read deadline fresh.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closing:
			// Learning: only this goroutine writes to the socket, so the
			// close frame cannot interleave with a queued message
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued when the client is closed, so an
// error sent just before a close still reaches the peer.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(messageType, data)
}
