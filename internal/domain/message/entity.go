package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message types. The metadata columns below form a closed variant per type:
// file/image messages carry the File* columns, ai_response messages carry
// Confidence and QuickReplies, text messages carry neither.
const (
	TypeText       = "text"
	TypeFile       = "file"
	TypeImage      = "image"
	TypeAIResponse = "ai_response"
)

// Delivery statuses reported over the messageStatus event.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusSeen      = "seen"
)

// Message represents the messages table
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID

	// SenderID is an identity string: registered user UUID, guest id, or
	// the reserved assistant id for automated replies.
	SenderID   string
	SenderName sql.NullString

	Type    string
	Content string

	ReplyToID uuid.NullUUID

	// File/image metadata
	FileName sql.NullString
	FileMime sql.NullString
	FileSize sql.NullInt64

	// AI response metadata
	Confidence   sql.NullFloat64
	QuickReplies sql.NullString // JSON array of suggested replies

	Edited    bool
	EditedAt  sql.NullTime
	CreatedAt time.Time
}

// MessageRead represents the message_reads table (read receipts).
type MessageRead struct {
	MessageID uuid.UUID `gorm:"primaryKey"`
	ReaderID  string    `gorm:"primaryKey"`
	ReadAt    time.Time
}

func (Message) TableName() string {
	return "messages"
}

func (MessageRead) TableName() string {
	return "message_reads"
}
