package qdrant

import (
	"context"
	"fmt"

	"enterprise-kb/internal/vectorindex"
)

// New connects to Qdrant and makes sure the chunk collection exists.
func New(ctx context.Context, cfg vectorindex.QdrantConfig) (*vectorindex.QdrantIndex, error) {
	index, err := vectorindex.NewQdrantIndex(cfg)
	if err != nil {
		return nil, err
	}
	if err := index.Ping(ctx); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("ping qdrant failed: %w", err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("ensure qdrant collection failed: %w", err)
	}
	return index, nil
}
