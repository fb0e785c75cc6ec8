package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"enterprise-kb/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation failed: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) ListByUserID(ctx context.Context, userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count conversations failed: %w", err)
	}
	var list []model.Conversation
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("updated_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list conversations failed: %w", err)
	}
	return list, total, nil
}

// DeleteByIDAndUserID removes the conversation and its messages. It reports
// whether a conversation was deleted.
func (r *ConversationRepository) DeleteByIDAndUserID(ctx context.Context, id string, userID uint) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation failed: %w", err)
	}
	return deleted, nil
}
