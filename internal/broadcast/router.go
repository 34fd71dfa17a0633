package broadcast

import (
	"encoding/json"

	"skylearn-chat/pkg/logger"

	"github.com/google/uuid"
)

// Event names carried over both transports.
const (
	EventNewMessage      = "new_message"
	EventUserTyping      = "user_typing"
	EventMessageStatus   = "messageStatus"
	EventAITypingStart   = "ai_typing_start"
	EventAITypingStop    = "ai_typing_stop"
	EventMessagesRead    = "messages_read"
	EventConversations   = "conversations_list"
	EventNewConversation = "new_conversation"
	EventSupportStatus   = "support_status"
)

// Envelope is the wire frame shared by the live channel and the fallback
// stream.
type Envelope struct {
	Event          string      `json:"event"`
	ConversationID string      `json:"conversationId"`
	Payload        interface{} `json:"payload"`
}

// Router delivers an event to every live subscriber of a conversation.
// It prefers the room-based live channel; when no live-channel server is
// registered it falls back to the single registered stream subscriber.
// With neither transport available the event is dropped.
type Router struct {
	registry *Registry
	log      *logger.Logger
}

func NewRouter(registry *Registry, log *logger.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Publish never returns an error and never blocks the caller. A delivery
// failure is logged and treated as "no live subscriber".
func (r *Router) Publish(conversationID uuid.UUID, event string, payload interface{}) {
	env := Envelope{
		Event:          event,
		ConversationID: conversationID.String(),
		Payload:        payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		if r.log != nil {
			r.log.Errorf("broadcast: dropping %s for %s: %v", event, conversationID, err)
		}
		return
	}

	if live := r.registry.Live(); live != nil {
		live.Broadcast(ChannelFor(conversationID), data)
		return
	}

	if sub := r.registry.Fallback(conversationID); sub != nil {
		sub.Send(data)
		return
	}

	if r.log != nil {
		r.log.Infof("broadcast: no subscriber for %s, dropped %s", conversationID, event)
	}
}

// PublishToIdentity delivers an event to every connection of one
// participant, bypassing room membership. Room broadcasts cannot announce a
// conversation nobody has joined yet, so creation and receipt events go out
// identity-addressed. Like Publish it never errors and never blocks; with no
// identity-capable live channel the event is dropped.
func (r *Router) PublishToIdentity(conversationID uuid.UUID, identityID, event string, payload interface{}) {
	env := Envelope{
		Event:          event,
		ConversationID: conversationID.String(),
		Payload:        payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		if r.log != nil {
			r.log.Errorf("broadcast: dropping %s for %s: %v", event, identityID, err)
		}
		return
	}

	if direct, ok := r.registry.Live().(IdentityChannel); ok {
		direct.BroadcastToIdentity(identityID, data)
		return
	}

	if r.log != nil {
		r.log.Infof("broadcast: no identity channel, dropped %s for %s", event, identityID)
	}
}
