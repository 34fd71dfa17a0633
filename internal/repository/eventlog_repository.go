package repository

import (
	"context"

	"skylearn-chat/internal/domain/event"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresEventLogRepository struct {
	db *gorm.DB
}

func NewEventLogRepository(db *gorm.DB) EventLogRepository {
	return &PostgresEventLogRepository{db: db}
}

func (r *PostgresEventLogRepository) Append(ctx context.Context, e *event.ChatEventLog) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *PostgresEventLogRepository) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&event.ChatEventLog{}).Error
}
