package websocket

import (
	"context"
	"sync"
	"time"

	"skylearn-chat/internal/domain/identity"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents one live WebSocket connection for a resolved identity.
type Client struct {
	ID         string
	IdentityID string
	Identity   identity.Identity
	Conn       *websocket.Conn
	Send       chan []byte
	rooms      map[string]bool
	mu         sync.RWMutex // protects rooms map and conn writes
}

func NewClient(conn *websocket.Conn, who identity.Identity) *Client {
	return &Client{
		ID:         uuid.New().String(),
		IdentityID: who.ID,
		Identity:   who,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		rooms:      make(map[string]bool),
	}
}

func (c *Client) trackRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

func (c *Client) untrackRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// InRoom checks if the client is subscribed to a room
func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms returns a copy of all subscribed rooms
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// WriteLoop handles outbound messages from the Send channel
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case msg, ok := <-c.Send:
			if !ok {
				c.close()
				return
			}
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.TextMessage, msg)
			c.mu.Unlock()
		case <-ticker.C:
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	_ = c.Conn.Close()
	c.mu.Unlock()
}

// SendMessage sends a message to the client's Send channel (non-blocking)
func (c *Client) SendMessage(msg []byte) {
	select {
	case c.Send <- msg:
	default:
		// Channel full, message dropped
	}
}
