package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/fanout"
	"reparto-backend/internal/tracking"
)

// Hub keeps track of open sockets and hands each one the shared fan-out
// registry, snapshot readers and tracking service.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	fan       *fanout.Hub
	snapshots *Snapshots
	track     *tracking.Service
	poll      time.Duration
	validate  *validator.Validate
	log       *logrus.Logger

	mu sync.RWMutex
}

func NewHub(fan *fanout.Hub, snapshots *Snapshots, track *tracking.Service, poll time.Duration, log *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		fan:        fan,
		snapshots:  snapshots,
		track:      track,
		poll:       poll,
		validate:   validator.New(),
		log:        log,
	}
}

// Run serves registrations until ctx is done, then closes every socket.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{
				"user_id": client.Actor.ID,
				"role":    client.Actor.Role,
				"total":   total,
			}).Info("✅ [WEBSOCKET] Client CONNECTED")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{
				"user_id": client.Actor.ID,
				"role":    client.Actor.Role,
				"total":   total,
			}).Info("🔴 [WEBSOCKET] Client DISCONNECTED")

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// join registers c, or reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriptionCount sums the live watches over every connected client.
func (h *Hub) SubscriptionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for client := range h.clients {
		total += client.Subscriptions()
	}
	return total
}
