package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub tracks connected clients and broadcasts to all of them.
type Hub struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	onCount func(int)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCountObserver calls fn with the client count whenever it changes.
func WithCountObserver(fn func(int)) Option {
	return func(h *Hub) { h.onCount = fn }
}

func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run owns the client set until ctx is done, then disconnects everyone and
// returns ctx.Err(). Clients registering afterwards start out closed.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			n := h.add(c)
			h.logger.Info("client connected", "client", c.ID, "total", n)
		case c := <-h.unregister:
			n := h.remove(c)
			h.logger.Info("client disconnected", "client", c.ID, "remaining", n)
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) add(c *Client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.notify(n)
	return n
}

func (h *Hub) remove(c *Client) int {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.notify(n)
	return n
}

// fanout queues msg on every client. A client whose queue is full is
// disconnected rather than allowed to stall the others.
func (h *Hub) fanout(msg []byte) {
	var slow []*Client

	h.mu.Lock()
	for c := range h.clients {
		if !c.enqueue(msg) {
			delete(h.clients, c)
			c.close()
			slow = append(slow, c)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropped slow client", "client", c.ID)
	}
	if len(slow) > 0 {
		h.notify(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	clear(h.clients)
	h.mu.Unlock()

	h.notify(0)
}

func (h *Hub) notify(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Broadcast queues msg for every client without blocking. When the hub is
// backed up the message is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, message dropped", "bytes", len(msg))
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(b)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
