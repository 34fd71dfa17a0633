package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skylearn-chat/internal/domain/conversation"
	"skylearn-chat/internal/domain/event"
	"skylearn-chat/internal/domain/message"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	Update(ctx context.Context, c conversation.Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error

	GetForParticipant(ctx context.Context, participantID string) ([]conversation.Conversation, error)
	GetAllSupport(ctx context.Context) ([]conversation.Conversation, error)

	AddParticipant(ctx context.Context, p *conversation.Participant) error
	RemoveParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) error
	GetParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) (conversation.Participant, error)
	SetParticipantArchived(ctx context.Context, conversationID uuid.UUID, participantID string, archived bool) error
	SetParticipantStarred(ctx context.Context, conversationID uuid.UUID, participantID string, starred bool) error

	SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
	SetSupportStatus(ctx context.Context, conversationID uuid.UUID, status string, agentID string) error

	GetSupportUpdatedSince(ctx context.Context, since time.Time) ([]conversation.Conversation, error)
	GetSupportCreatedSince(ctx context.Context, since time.Time) ([]conversation.Conversation, error)
	GetResolvedBefore(ctx context.Context, cutoff time.Time) ([]conversation.Conversation, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	Update(ctx context.Context, m message.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error

	GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error)
	CountBySenderSince(ctx context.Context, senderID string, since time.Time) (int64, error)
	GetRecentBySender(ctx context.Context, senderID string, limit int) ([]message.Message, error)
	FirstNonGuestMessageAt(ctx context.Context, conversationID uuid.UUID) (time.Time, bool, error)

	MarkRead(ctx context.Context, conversationID uuid.UUID, readerID string, at time.Time) error
}

type EventLogRepository interface {
	Append(ctx context.Context, e *event.ChatEventLog) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error
}

// Migrate runs gorm auto-migration for all chat tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&conversation.Conversation{},
		&conversation.Participant{},
		&message.Message{},
		&message.MessageRead{},
		&event.ChatEventLog{},
	)
}
