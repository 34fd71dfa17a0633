package repository

import (
	"context"
	"errors"
	"time"

	"skylearn-chat/internal/domain/conversation"
	chat_errors "skylearn-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return chat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, chat_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) Update(ctx context.Context, c conversation.Conversation) error {
	res := r.db.WithContext(ctx).Omit("Participants").Save(&c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&conversation.Participant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&conversation.Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return chat_errors.ErrNotFound
		}
		return nil
	})
}

func (r *PostgresConversationRepository) GetForParticipant(ctx context.Context, participantID string) ([]conversation.Conversation, error) {
	var convs []conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.participant_id = ?", participantID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *PostgresConversationRepository) GetAllSupport(ctx context.Context) ([]conversation.Conversation, error) {
	var convs []conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("is_support = ?", true).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *PostgresConversationRepository) AddParticipant(ctx context.Context, p *conversation.Participant) error {
	res := r.db.WithContext(ctx).Create(p)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return chat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) RemoveParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) error {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ? AND participant_id = ?", conversationID, participantID).
		Delete(&conversation.Participant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) GetParticipant(ctx context.Context, conversationID uuid.UUID, participantID string) (conversation.Participant, error) {
	var p conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND participant_id = ?", conversationID, participantID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Participant{}, chat_errors.ErrNotFound
		}
		return conversation.Participant{}, err
	}
	return p, nil
}

func (r *PostgresConversationRepository) SetParticipantArchived(ctx context.Context, conversationID uuid.UUID, participantID string, archived bool) error {
	return r.setParticipantFlag(ctx, conversationID, participantID, "archived", archived)
}

func (r *PostgresConversationRepository) SetParticipantStarred(ctx context.Context, conversationID uuid.UUID, participantID string, starred bool) error {
	return r.setParticipantFlag(ctx, conversationID, participantID, "starred", starred)
}

func (r *PostgresConversationRepository) setParticipantFlag(ctx context.Context, conversationID uuid.UUID, participantID, column string, value bool) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND participant_id = ?", conversationID, participantID).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) SetSupportStatus(ctx context.Context, conversationID uuid.UUID, status string, agentID string) error {
	updates := map[string]interface{}{
		"support_status": status,
		"updated_at":     time.Now(),
	}
	if agentID != "" {
		updates["assigned_agent"] = agentID
	}
	if status == conversation.SupportStatusResolved {
		updates["resolved_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) GetSupportUpdatedSince(ctx context.Context, since time.Time) ([]conversation.Conversation, error) {
	var convs []conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("is_support = ? AND updated_at >= ?", true, since).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *PostgresConversationRepository) GetSupportCreatedSince(ctx context.Context, since time.Time) ([]conversation.Conversation, error) {
	var convs []conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("is_support = ? AND created_at >= ?", true, since).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *PostgresConversationRepository) GetResolvedBefore(ctx context.Context, cutoff time.Time) ([]conversation.Conversation, error) {
	var convs []conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("is_support = ? AND support_status = ? AND resolved_at < ?", true, conversation.SupportStatusResolved, cutoff).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}
