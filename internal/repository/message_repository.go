package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"enterprise-kb/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendTurn stores a user message and the assistant reply in one
// transaction, creating the conversation first when isNew is set. The
// question is stamped after the conversation's latest message and the
// reply after the question, so ordering by created_at is stable.
func (r *MessageRepository) AppendTurn(ctx context.Context, conv *model.Conversation, isNew bool, user, assistant *model.Message) error {
	user.ConversationID = conv.ID
	assistant.ConversationID = conv.ID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if isNew {
			if err := tx.Create(conv).Error; err != nil {
				return err
			}
		} else {
			var last []model.Message
			if err := tx.Where("conversation_id = ?", conv.ID).
				Order("created_at DESC").Limit(1).Find(&last).Error; err != nil {
				return err
			}
			if len(last) == 1 && !user.CreatedAt.After(last[0].CreatedAt) {
				user.CreatedAt = last[0].CreatedAt.Add(time.Millisecond)
			}
		}
		if !assistant.CreatedAt.After(user.CreatedAt) {
			assistant.CreatedAt = user.CreatedAt.Add(time.Millisecond)
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := tx.Create(assistant).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).Update("updated_at", assistant.CreatedAt).Error
	})
	if err != nil {
		return fmt.Errorf("append conversation turn failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByConversationID(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var messages []model.Message
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

// ListRecentByConversationID returns the newest limit messages in chronological order.
func (r *MessageRepository) ListRecentByConversationID(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var messages []model.Message
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
