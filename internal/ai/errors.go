package ai

import "errors"

var (
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrRerankUnavailable    = errors.New("rerank service unavailable")
	ErrGenerationFailed     = errors.New("generation failed")
)
