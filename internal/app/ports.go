package app

import (
	"context"
	"io"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/vectorindex"
)

type TextEmbedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	EncodeOne(ctx context.Context, text string) ([]float32, error)
}

type CandidateReranker interface {
	Rerank(ctx context.Context, query string, candidates []vectorindex.Hit, topK int) ([]ai.Ranked, error)
}

type Generator interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
	StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error)
	Model() string
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID string) error
}

type IndexQueue interface {
	Enqueue(ctx context.Context, job model.IndexJob) error
}

type FileStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, int64, error)
	Remove(path string) error
}
