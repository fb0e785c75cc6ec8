package bootstrap

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/app"
	"enterprise-kb/internal/cache"
	"enterprise-kb/internal/chunker"
	"enterprise-kb/internal/config"
	"enterprise-kb/internal/parser"
	"enterprise-kb/internal/repository"
	"enterprise-kb/internal/storage"
	"enterprise-kb/internal/vectorindex"
)

// Backends overrides the model services; nil fields are built from config.
type Backends struct {
	Embedding ai.EmbeddingBackend
	Score     ai.ScoreBackend
	Generator app.Generator
}

// Deps are the long-lived resources the services are built on.
// Redis and Queue may be nil: history is then read uncached and uploads
// are indexed inline.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Index    vectorindex.Index
	Queue    app.IndexQueue
	Backends Backends
}

type Services struct {
	Auth          *app.AuthService
	Documents     *app.DocumentService
	Conversations *app.ConversationService
	Answerer      *app.Answerer
	Retriever     *app.Retriever
	Ingestor      *app.Ingestor
}

func NewServices(deps Deps) (*Services, error) {
	cfg := deps.Config

	userRepo := repository.NewUserRepository(deps.DB)
	documentRepo := repository.NewDocumentRepository(deps.DB)
	conversationRepo := repository.NewConversationRepository(deps.DB)
	messageRepo := repository.NewMessageRepository(deps.DB)

	var history app.HistoryCache
	if deps.Redis != nil {
		history = cache.NewHistoryCache(deps.Redis, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second)
	}

	pool := ai.NewPool(cfg.Embedding.Workers)

	embeddingBackend := deps.Backends.Embedding
	if embeddingBackend == nil {
		embeddingBackend = ai.NewHTTPEmbeddingBackend(
			cfg.Embedding.BaseURL,
			cfg.Embedding.APIKey,
			cfg.Embedding.Model,
			time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
		)
	}
	embedder := ai.NewEmbedder(embeddingBackend, pool, ai.EmbedderConfig{
		BatchSize: cfg.Embedding.BatchSize,
		Normalize: cfg.Embedding.Normalize,
		Dimension: cfg.Embedding.Dimension,
	})

	var reranker app.CandidateReranker
	if cfg.Rerank.Enabled {
		scoreBackend := deps.Backends.Score
		if scoreBackend == nil {
			scoreBackend = ai.NewHTTPScoreBackend(
				cfg.Rerank.BaseURL,
				cfg.Rerank.APIKey,
				cfg.Rerank.Model,
				time.Duration(cfg.Rerank.TimeoutSeconds)*time.Second,
			)
		}
		reranker = ai.NewReranker(scoreBackend, pool, ai.RerankerConfig{TopK: cfg.Rerank.TopK})
	}

	generator := deps.Backends.Generator
	if generator == nil {
		generator = ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			TopP:        cfg.LLM.TopP,
			Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	}

	store, err := storage.NewLocalStore(cfg.Storage.Path, int64(cfg.Storage.MaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("init file storage failed: %w", err)
	}

	retriever := app.NewRetriever(embedder, deps.Index, reranker, app.RetrieverConfig{
		TopK:           cfg.RAG.TopK,
		ScoreThreshold: float32(cfg.RAG.ScoreThreshold),
		RerankEnabled:  cfg.Rerank.Enabled,
	})
	ingestor := app.NewIngestor(
		documentRepo,
		parser.New(),
		chunker.New(chunker.WithChunkSize(cfg.RAG.ChunkSize), chunker.WithOverlap(cfg.RAG.ChunkOverlap)),
		embedder,
		deps.Index,
	)

	return &Services{
		Auth: app.NewAuthService(
			userRepo,
			cfg.Auth.JWTSecret,
			time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		),
		Documents:     app.NewDocumentService(documentRepo, ingestor, store, deps.Queue),
		Conversations: app.NewConversationService(conversationRepo, messageRepo, history),
		Answerer: app.NewAnswerer(
			retriever,
			generator,
			documentRepo,
			conversationRepo,
			messageRepo,
			history,
			app.NewConversationLocks(),
			app.AnswererConfig{ContextTokenBudget: cfg.RAG.ContextTokenBudget},
		),
		Retriever: retriever,
		Ingestor:  ingestor,
	}, nil
}
