// Package ws is the real-time entry point: clients send chat messages over a
// websocket and receive the answer as a single event.
package ws

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
)

// Event is an outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventConnectionStatus = "connection_status"
	EventNewMessage       = "new_message"
	EventMessageError     = "message_error"
)

type delivery struct {
	client  *Client
	payload []byte
}

// Hub owns the set of connected clients and is the only writer to their
// send channels.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound frames addressed to one client.
	deliver chan delivery

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	logger *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		deliver:    make(chan delivery),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("ws: client connected", "user_id", client.userID, "clients", len(h.clients))
			h.push(client, mustMarshal(Event{Type: EventConnectionStatus, Data: map[string]string{"status": "connected"}}))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("ws: client disconnected", "user_id", client.userID, "clients", len(h.clients))
			}
		case d := <-h.deliver:
			// The client may have left while its answer was being produced.
			if _, ok := h.clients[d.client]; ok {
				h.push(d.client, d.payload)
			}
		}
	}
}

// push queues payload for client, dropping a client whose buffer is full.
func (h *Hub) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("ws: send buffer full, dropping client", "user_id", client.userID)
		close(client.send)
		delete(h.clients, client)
	}
}

// Send queues an event for one client. It returns once the hub has taken
// the frame or has stopped.
func (h *Hub) Send(client *Client, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws: failed to encode event", "type", ev.Type, "err", err)
		return
	}
	select {
	case h.deliver <- delivery{client: client, payload: payload}:
	case <-h.done:
	}
}

// Register adds client to the hub. It reports false when the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
