package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub maintains live-feed connections and fans seat events out to the clients watching a trip
type Hub struct {
	clients    map[*Client]bool
	register   chan registration
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logrus.Logger
}

type registration struct {
	client *Client
	added  chan struct{}
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHub creates a new WebSocket hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan registration),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and closes every client when ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client] = true
			h.mu.Unlock()
			close(reg.added)
			h.logger.WithFields(logrus.Fields{
				"client_id": reg.client.ID,
				"user_id":   reg.client.UserID,
			}).Info("Live feed client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.WithField("client_id", client.ID).Info("Live feed client unregistered")
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client and returns once broadcasts reach it. It reports
// false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	reg := registration{client: client, added: make(chan struct{})}
	select {
	case h.register <- reg:
		<-reg.added
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToTrip sends a message to every client subscribed to a trip and
// returns how many clients accepted it. Clients with a full buffer miss the message.
func (h *Hub) BroadcastToTrip(tripID string, message Message) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal trip message")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients {
		if !client.IsSubscribedToTrip(tripID) {
			continue
		}
		select {
		case client.Send <- data:
			delivered++
		default:
			h.logger.WithFields(logrus.Fields{
				"trip_id":   tripID,
				"client_id": client.ID,
			}).Warn("Failed to send trip message to client")
		}
	}
	return delivered
}

// SendToClient queues a message for one registered client. It reports false
// when the client has left or its buffer is full.
func (h *Hub) SendToClient(client *Client, message Message) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal client message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

// GetActiveConnections returns the number of active connections
func (h *Hub) GetActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
