package websocket

import (
	"context"
	"sync"

	"github.com/reelfetch/reelfetch/internal/metrics"
)

// MessageTypeProgress is the only message type pushed to clients.
const MessageTypeProgress = "download_progress"

// ProgressMessage represents a download progress update.
type ProgressMessage struct {
	Type       string  `json:"type"`
	ProgressID string  `json:"progress_id"`
	Status     string  `json:"status"`
	Percent    float64 `json:"percent"`
	Error      string  `json:"error,omitempty"`
}

// Hub maintains the set of active clients, keyed by the progress id they
// subscribed to, and fans progress messages out to them.
type Hub struct {
	// Registered clients by progress ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Progress updates are advisory; the buffer absorbs bursts and anything
	// beyond it is dropped rather than stalling a download.
	broadcast chan *ProgressMessage

	done    chan struct{}
	metrics *metrics.Metrics

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *ProgressMessage, 256),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run starts the hub's main loop. It returns once ctx is cancelled, after
// closing every client's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for client := range clients {
					h.drop(clients, client)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.progressID] == nil {
				h.clients[client.progressID] = make(map[*Client]bool)
			}
			h.clients[client.progressID][client] = true
			h.metrics.IncWSConnections()
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.progressID]; ok {
				if _, ok := clients[client]; ok {
					h.drop(clients, client)
					if len(clients) == 0 {
						delete(h.clients, client.progressID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[message.ProgressID]; ok {
				for client := range clients {
					select {
					case client.send <- message:
					default:
						// Client's buffer is full, close the connection
						h.drop(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, message.ProgressID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(clients map[*Client]bool, client *Client) {
	delete(clients, client)
	close(client.send)
	h.metrics.DecWSConnections()
}

// Register adds a client. It reports false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client. Safe to call after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues msg for the clients subscribed to its progress id.
// It never blocks.
func (h *Hub) Broadcast(msg *ProgressMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
	}
}

// ClientCount returns the number of connected clients for a progress id.
func (h *Hub) ClientCount(progressID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[progressID])
}
