package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Client is one websocket connection attached to a Hub.
type Client struct {
	ID string

	hub  *Hub
	conn Conn

	mu     sync.Mutex
	queue  chan []byte
	closed bool

	writerDone chan struct{}
}

// NewClient attaches conn to h. If h has already stopped the client is
// returned closed and Run exits as soon as the peer does.
func NewClient(h *Hub, conn Conn) *Client {
	c := &Client{
		ID:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		queue: make(chan []byte, sendBuffer),

		writerDone: make(chan struct{}),
	}
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
	return c
}

// Send queues data for this client alone. It reports whether the data was
// accepted.
func (c *Client) Send(data []byte) bool {
	return c.enqueue(data)
}

// SendJSON marshals v and queues it for this client.
func (c *Client) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.enqueue(b)
	return nil
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

// close is idempotent. Closing the queue tells the writer to send a close
// frame and hang up.
func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
}

// Run serves the connection until it drops: a writer goroutine drains the
// queue and pings, while the calling goroutine reads and calls handle for
// each text frame. Run returns only after the writer has exited, so the
// caller may release conn as soon as Run returns.
func (c *Client) Run(handle Handler) {
	go c.write()
	c.read(handle)
	<-c.writerDone
}

func (c *Client) read(handle Handler) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		// The hub may already be gone, so close the queue here as well to
		// stop the writer.
		c.close()
		c.conn.Close()
	}()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(extend)
	_ = extend("")

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = extend("")
		if kind == websocket.TextMessage && handle != nil {
			handle(c, data)
		}
	}
}

// write is the only goroutine that writes to conn.
func (c *Client) write() {
	ping := time.NewTicker(pingPeriod)
	defer close(c.writerDone)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var kind int
		var data []byte

		select {
		case msg, ok := <-c.queue:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, data = websocket.TextMessage, msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
