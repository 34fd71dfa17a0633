package websocket

import (
	"context"
	"sync"
)

// subscriptionRequest represents a room subscription/unsubscription request
type subscriptionRequest struct {
	client    *Client
	room      string
	subscribe bool
}

// Hub is the room-based live-channel server. It owns the process-local
// connection tables: client id -> client, and room -> subscriber set. The
// tables are a delivery index, not a source of truth; they start empty on
// every boot.
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// rooms maps room name to the set of clients subscribed to it
	rooms map[string]map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	subscription chan subscriptionRequest
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		rooms:        make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 256),
		unregister:   make(chan *Client, 256),
		subscription: make(chan subscriptionRequest, 512),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.subscribe {
				h.joinRoom(req.client, req.room)
			} else {
				h.leaveRoom(req.client, req.room)
			}
		}
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a room
func (h *Hub) Subscribe(client *Client, room string) {
	h.subscription <- subscriptionRequest{client: client, room: room, subscribe: true}
}

// Unsubscribe unsubscribes a client from a room
func (h *Hub) Unsubscribe(client *Client, room string) {
	h.subscription <- subscriptionRequest{client: client, room: room, subscribe: false}
}

// Broadcast sends a payload to every client subscribed to a room. It
// satisfies the router's live-channel contract.
func (h *Hub) Broadcast(room string, payload []byte) {
	h.mu.RLock()
	clients := h.rooms[room]
	for c := range clients {
		c.SendMessage(payload)
	}
	h.mu.RUnlock()
}

// BroadcastToIdentity sends a payload to every connection of one identity.
func (h *Hub) BroadcastToIdentity(identityID string, payload []byte) {
	h.mu.RLock()
	for _, client := range h.clients {
		if client.IdentityID == identityID {
			client.SendMessage(payload)
		}
	}
	h.mu.RUnlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of subscribers in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range client.rooms {
		if subscribers, ok := h.rooms[room]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) joinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.trackRoom(room)
}

func (h *Hub) leaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.rooms[room]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.rooms, room)
		}
	}
	client.untrackRoom(room)
}
