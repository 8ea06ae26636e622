// Package ws implements the realtime transport. Each signed-in user holds at
// most one socket; feed snapshots flow out as events and feed commands flow in.
package ws

import (
	"log/slog"
	"sync"
)

// Event is a server-to-client message carrying a feed snapshot or an error.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the set of active clients keyed by user ID.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan directedEvent

	mu     sync.RWMutex
	logger *slog.Logger
}

type directedEvent struct {
	userIDs []string
	event   Event
}

// NewHub creates an empty hub. Run must be started before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan directedEvent, 64),
		logger:     logger,
	}
}

// Run drives the hub's registration and broadcast loop until the register
// channel's producer goroutines stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if existing, ok := h.clients[client.userID]; ok {
				existing.shutdown()
				h.logger.Info("replaced realtime connection", slog.String("user_id", client.userID))
			}
			h.clients[client.userID] = client
			h.mu.Unlock()
			h.logger.Info("realtime client connected", slog.String("user_id", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				client.shutdown()
				h.logger.Info("realtime client disconnected", slog.String("user_id", client.userID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg.userIDs, msg.event)
		}
	}
}

// RegisterClient attaches a client to the hub, replacing any prior connection
// for the same user.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient detaches a client from the hub.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Notify queues an event for the given users. Events are dropped when the
// broadcast queue is full.
func (h *Hub) Notify(userIDs []string, event Event) {
	select {
	case h.broadcast <- directedEvent{userIDs: userIDs, event: event}:
	default:
		h.logger.Warn("broadcast queue full, dropping event", slog.String("type", event.Type))
	}
}

func (h *Hub) deliver(userIDs []string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		if client, ok := h.clients[userID]; ok {
			if err := client.Send(event); err != nil {
				h.logger.Error("send event failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()))
			}
		}
	}
}

// IsUserConnected reports whether the user currently holds a socket.
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
