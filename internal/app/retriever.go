package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/vectorindex"
)

const (
	defaultTopK           = 10
	defaultScoreThreshold = float32(0.5)
	rerankOverFetch       = 2
)

// RetrievedChunk is a search hit, with its cross-encoder score when it was reranked.
type RetrievedChunk struct {
	vectorindex.Hit
	RerankScore *float32
}

// RetrieveInput leaves TopK at zero and the pointers nil to use configured defaults.
type RetrieveInput struct {
	Query          string
	Principal      model.Principal
	TopK           int
	ScoreThreshold *float32
	UseRerank      *bool
}

type RetrieverConfig struct {
	TopK           int
	ScoreThreshold float32
	RerankEnabled  bool
}

type Retriever struct {
	embedder TextEmbedder
	index    vectorindex.Index
	reranker CandidateReranker
	cfg      RetrieverConfig
	logger   *slog.Logger
}

// NewRetriever accepts a nil reranker, which disables reranking regardless of input.
func NewRetriever(embedder TextEmbedder, index vectorindex.Index, reranker CandidateReranker, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		cfg:      cfg,
		logger:   logging.NewModuleLogger("app", "retriever"),
	}
}

func (r *Retriever) Retrieve(ctx context.Context, in RetrieveInput) ([]RetrievedChunk, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	topK := in.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	threshold := r.cfg.ScoreThreshold
	if in.ScoreThreshold != nil {
		threshold = *in.ScoreThreshold
	}
	useRerank := r.cfg.RerankEnabled
	if in.UseRerank != nil {
		useRerank = *in.UseRerank
	}
	useRerank = useRerank && r.reranker != nil

	embedding, err := r.embedder.EncodeOne(ctx, query)
	if err != nil {
		return nil, err
	}

	filter, err := permissionFilter(in.Principal)
	if err != nil {
		return nil, err
	}

	fetch := topK
	if useRerank {
		fetch = topK * rerankOverFetch
	}
	hits, err := r.index.Search(ctx, embedding, fetch, filter)
	if err != nil {
		return nil, err
	}

	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}

	r.logger.Debug("retrieval candidates",
		"fetched", len(hits),
		"kept", len(kept),
		"threshold", threshold,
		"rerank", useRerank,
	)

	if len(kept) == 0 {
		return []RetrievedChunk{}, nil
	}

	if useRerank {
		ranked, err := r.reranker.Rerank(ctx, query, kept, topK)
		if err != nil {
			return nil, err
		}
		out := make([]RetrievedChunk, 0, len(ranked))
		for _, rk := range ranked {
			score := rk.RerankScore
			out = append(out, RetrievedChunk{Hit: rk.Hit, RerankScore: &score})
		}
		return out, nil
	}

	if len(kept) > topK {
		kept = kept[:topK]
	}
	out := make([]RetrievedChunk, 0, len(kept))
	for _, h := range kept {
		out = append(out, RetrievedChunk{Hit: h})
	}
	return out, nil
}

// permissionFilter returns nil for superusers.
func permissionFilter(p model.Principal) (vectorindex.Expr, error) {
	if p.IsSuperuser {
		return nil, nil
	}
	filter, err := vectorindex.SearchFilter{
		PublicOrDepartment: true,
		DepartmentID:       p.DepartmentID,
	}.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return filter, nil
}
