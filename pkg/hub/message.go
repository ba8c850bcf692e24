// Package hub fans bear state and log messages out to websocket clients.
// A single Run goroutine owns the client set; each client has its own
// writer goroutine fed by a bounded queue.
package hub

import "time"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10 // must be shorter than pongWait
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Conn is what the hub needs from a websocket connection. Fiber's and
// gorilla's connections both satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Handler receives each text frame a client sends.
type Handler func(c *Client, data []byte)
