package websocket

import (
	"context"
	"sync"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/logger"
)

// Message defines the generic structure for WS communication
type Message struct {
	Type    string      `json:"type"`
	ZoneID  string      `json:"zone_id,omitempty"`
	Payload interface{} `json:"payload"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *logger.Logger
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket Hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("WebSocket Hub shutting down...")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("New WS Client connected (zone filter %q). Total: %d", client.zoneID, total)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.send <- message:
				default:
					h.log.Warn("WS client too slow, disconnecting")
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients. It returns without
// sending once the hub has stopped.
func (h *Hub) Broadcast(msgType, zoneID string, payload interface{}) {
	select {
	case h.broadcast <- Message{Type: msgType, ZoneID: zoneID, Payload: payload}:
	case <-h.done:
	}
}

// Forward pushes every alert event from a manager subscription to clients.
func (h *Hub) Forward(ctx context.Context, events <-chan alerting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(string(ev.Type), ev.Alert.ZoneID, ev.Alert)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
