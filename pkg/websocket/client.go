package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client represents a WebSocket client connection
type Client struct {
	ID            string
	UserID        string
	Hub           *Hub
	Conn          *websocket.Conn
	Send          chan []byte
	subscriptions map[string]bool // trip IDs this client is watching
	mu            sync.RWMutex
	logger        *logrus.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type   string `json:"type"`
	TripID string `json:"trip_id,omitempty"`
}

// NewClient creates a new WebSocket client watching the given trips
func NewClient(hub *Hub, conn *websocket.Conn, userID string, logger *logrus.Logger, tripIDs ...string) *Client {
	c := &Client{
		ID:            uuid.NewString(),
		UserID:        userID,
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		logger:        logger,
	}
	for _, id := range tripIDs {
		c.subscriptions[id] = true
	}
	return c
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).WithField("client_id", c.ID).Error("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.WithError(err).WithField("client_id", c.ID).Warn("Failed to unmarshal client message")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.Subscribe(msg.TripID)
	case "unsubscribe":
		c.Unsubscribe(msg.TripID)
	case "ping":
		c.SendMessage(Message{Type: "pong"})
	default:
		c.logger.WithFields(logrus.Fields{
			"type":      msg.Type,
			"client_id": c.ID,
		}).Warn("Unknown message type")
	}
}

// Subscribe starts watching a trip
func (c *Client) Subscribe(tripID string) {
	if tripID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[tripID] = true
}

// Unsubscribe stops watching a trip
func (c *Client) Unsubscribe(tripID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, tripID)
}

// IsSubscribedToTrip checks if the client is watching a trip
func (c *Client) IsSubscribedToTrip(tripID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[tripID]
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.WithError(err).WithField("client_id", c.ID).Error("Failed to marshal message")
		return
	}

	select {
	case c.Send <- data:
	default:
		c.logger.WithField("client_id", c.ID).Warn("Client send buffer full")
	}
}
