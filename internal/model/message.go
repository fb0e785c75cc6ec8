package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is a citation attached to an assistant message.
type Source struct {
	DocumentID  string   `json:"document_id"`
	ChunkID     string   `json:"chunk_id"`
	Score       float32  `json:"score"`
	RerankScore *float32 `json:"rerank_score,omitempty"`
	Title       string   `json:"title,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	HTMLContent string   `json:"html_content,omitempty"`
	HasImages   bool     `json:"has_images,omitempty"`
}

type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index:idx_conv_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Sources        []Source  `gorm:"serializer:json;type:text" json:"sources,omitempty"`
	TokenCount     int       `json:"token_count"`
	Model          string    `gorm:"size:128" json:"model,omitempty"`
	CreatedAt      time.Time `gorm:"index:idx_conv_created,priority:2" json:"created_at"`
}
