package event

import (
	"time"

	"github.com/google/uuid"
)

// Chat event log types. Records are write-once and kept for analytics.
const (
	TypeMessageSent    = "message_sent"
	TypeTyping         = "typing"
	TypeStatusChange   = "status_change"
	TypeError          = "error"
	TypeSupportCreated = "support_conversation_created"
)

// ChatEventLog represents the chat_event_logs table. Append-only.
type ChatEventLog struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	EventType      string
	ActorID        string
	Payload        string // free-form JSON metadata
	CreatedAt      time.Time
}

func (ChatEventLog) TableName() string {
	return "chat_event_logs"
}
