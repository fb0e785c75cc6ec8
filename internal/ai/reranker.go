package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/vectorindex"
)

// ScoreBackend scores each document's relevance to query; higher is better.
type ScoreBackend interface {
	Score(ctx context.Context, query string, documents []string) ([]float32, error)
}

// Ranked is a search hit with its cross-encoder score.
type Ranked struct {
	vectorindex.Hit
	RerankScore float32
}

type RerankerConfig struct {
	TopK int
	// BatchSize caps how many pairs go to the backend in one request.
	BatchSize int
	Timeout   time.Duration
}

type Reranker struct {
	backend ScoreBackend
	pool    *Pool
	cfg     RerankerConfig
	logger  *slog.Logger
}

func NewReranker(backend ScoreBackend, pool *Pool, cfg RerankerConfig) *Reranker {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if pool == nil {
		pool = NewPool(1)
	}
	return &Reranker{
		backend: backend,
		pool:    pool,
		cfg:     cfg,
		logger:  logging.NewModuleLogger("ai", "reranker"),
	}
}

func (r *Reranker) DefaultTopK() int { return r.cfg.TopK }

// Rerank scores candidates against query and returns at most topK of them,
// best first. Equal scores keep their input order. topK <= 0 uses the default.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []vectorindex.Hit, topK int) ([]Ranked, error) {
	if len(candidates) == 0 {
		return []Ranked{}, nil
	}
	if r.backend == nil {
		return nil, fmt.Errorf("%w: no rerank backend configured", ErrRerankUnavailable)
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	size := r.cfg.BatchSize
	batches := (len(candidates) + size - 1) / size
	scores := make([]float32, len(candidates))

	err := r.pool.Run(ctx, batches, func(ctx context.Context, b int) error {
		start := b * size
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		docs := make([]string, 0, end-start)
		for _, c := range candidates[start:end] {
			docs = append(docs, c.Content)
		}
		got, err := r.backend.Score(ctx, query, docs)
		if err != nil {
			return err
		}
		if len(got) != len(docs) {
			return fmt.Errorf("backend returned %d scores for %d documents", len(got), len(docs))
		}
		copy(scores[start:end], got)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerankUnavailable, err)
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Hit: c, RerankScore: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})

	r.logger.Debug("reranked candidates", "candidates", len(candidates), "kept", topK)
	return ranked[:topK], nil
}

// HTTPScoreBackend calls a cross-encoder /rerank endpoint (TEI, Jina and
// Cohere style) and maps the results back to input positions.
type HTTPScoreBackend struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewHTTPScoreBackend(baseURL, apiKey, model string, timeout time.Duration) *HTTPScoreBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPScoreBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (b *HTTPScoreBackend) Score(ctx context.Context, query string, documents []string) ([]float32, error) {
	bodyBytes, err := json.Marshal(rerankRequest{
		Model:     b.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/rerank", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build rerank request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank json failed: %w", err)
	}

	scores := make([]float32, len(documents))
	seen := make([]bool, len(documents))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		scores[res.Index] = float32(res.RelevanceScore)
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for document %d", i)
		}
	}
	return scores, nil
}
