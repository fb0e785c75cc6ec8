package app

import (
	"context"
	"log/slog"
	"strings"

	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/repository"
)

const historyLimit = 200

type ConversationService struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	historyCache  HistoryCache
	logger        *slog.Logger
}

type ConversationPage struct {
	Items    []model.Conversation `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

type ConversationDetail struct {
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

func NewConversationService(
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	historyCache HistoryCache,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		historyCache:  historyCache,
		logger:        logging.NewModuleLogger("app", "conversations"),
	}
}

func (s *ConversationService) List(ctx context.Context, userID uint, page, pageSize int) (*ConversationPage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	items, total, err := s.conversations.ListByUserID(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	return &ConversationPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns the conversation with its messages, reading them through the cache.
func (s *ConversationService) Get(ctx context.Context, userID uint, id string) (*ConversationDetail, error) {
	id = strings.TrimSpace(id)
	if userID == 0 || id == "" {
		return nil, ErrInvalidInput
	}
	conv, err := s.conversations.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	if s.historyCache != nil {
		cached, ok, err := s.historyCache.GetHistory(ctx, id)
		if err != nil {
			s.logger.Warn("read history cache failed", "conversation_id", id, "error", err)
		} else if ok {
			return &ConversationDetail{Conversation: conv, Messages: cached}, nil
		}
	}

	messages, err := s.messages.ListByConversationID(ctx, id, historyLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.SetHistory(ctx, id, messages); err != nil {
			s.logger.Warn("write history cache failed", "conversation_id", id, "error", err)
		}
	}
	return &ConversationDetail{Conversation: conv, Messages: messages}, nil
}

func (s *ConversationService) Delete(ctx context.Context, userID uint, id string) error {
	id = strings.TrimSpace(id)
	if userID == 0 || id == "" {
		return ErrInvalidInput
	}
	deleted, err := s.conversations.DeleteByIDAndUserID(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrConversationNotFound
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, id)
	}
	return nil
}
