package broadcast

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LiveChannel is the room-based primary transport (the websocket hub).
type LiveChannel interface {
	Broadcast(channel string, payload []byte)
}

// IdentityChannel is the identity-addressed side of the live channel. It
// reaches every connection of one participant regardless of room
// subscriptions, which is how events about conversations the participant
// has not joined yet find their audience.
type IdentityChannel interface {
	BroadcastToIdentity(identityID string, payload []byte)
}

// Subscriber is a single fallback-stream consumer. Send must not block.
type Subscriber interface {
	Send(payload []byte)
}

// ChannelFor returns the room name used for a conversation.
func ChannelFor(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_%s", conversationID)
}

// Registry is the process-wide delivery index: the live-channel server, if
// one is running, plus at most one fallback-stream subscriber per
// conversation. It is not a source of truth; it starts empty on every boot.
type Registry struct {
	mu        sync.RWMutex
	live      LiveChannel
	fallbacks map[string]Subscriber // conversation id -> single subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		fallbacks: make(map[string]Subscriber),
	}
}

// SetLiveChannel registers the room-based transport. Passing nil detaches it.
func (r *Registry) SetLiveChannel(live LiveChannel) {
	r.mu.Lock()
	r.live = live
	r.mu.Unlock()
}

// Live returns the registered live channel, or nil.
func (r *Registry) Live() LiveChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// RegisterFallback installs the fallback subscriber for a conversation.
// A subsequent registration silently replaces the previous one.
func (r *Registry) RegisterFallback(conversationID uuid.UUID, sub Subscriber) {
	r.mu.Lock()
	r.fallbacks[conversationID.String()] = sub
	r.mu.Unlock()
}

// UnregisterFallback removes the subscriber, but only if it is still the
// registered one; a replaced subscriber unregistering late is a no-op.
func (r *Registry) UnregisterFallback(conversationID uuid.UUID, sub Subscriber) {
	r.mu.Lock()
	if r.fallbacks[conversationID.String()] == sub {
		delete(r.fallbacks, conversationID.String())
	}
	r.mu.Unlock()
}

// Fallback returns the current fallback subscriber for a conversation, or nil.
func (r *Registry) Fallback(conversationID uuid.UUID) Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbacks[conversationID.String()]
}
