package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"enterprise-kb/internal/pkg/logging"
)

type EmbedderConfig struct {
	BatchSize int
	Normalize bool
	// Dimension 0 means discover it from the backend on first use.
	Dimension int
	Timeout   time.Duration
}

// Embedder batches texts through a backend and optionally L2-normalizes
// the vectors so inner product equals cosine similarity.
type Embedder struct {
	backend EmbeddingBackend
	pool    *Pool
	cfg     EmbedderConfig
	logger  *slog.Logger

	mu        sync.Mutex
	ready     bool
	dimension int
}

func NewEmbedder(backend EmbeddingBackend, pool *Pool, cfg EmbedderConfig) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if pool == nil {
		pool = NewPool(1)
	}
	return &Embedder{
		backend: backend,
		pool:    pool,
		cfg:     cfg,
		logger:  logging.NewModuleLogger("ai", "embedder"),
	}
}

// init settles the dimension. A failed discovery is not remembered, so the next
// call tries again. Discovery runs detached from the caller's cancellation.
func (e *Embedder) init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready {
		return nil
	}
	if e.backend == nil {
		return fmt.Errorf("%w: no embedding backend configured", ErrEmbeddingUnavailable)
	}
	if e.cfg.Dimension > 0 {
		e.dimension = e.cfg.Dimension
		e.ready = true
		return nil
	}

	discoverCtx := context.WithoutCancel(ctx)
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		discoverCtx, cancel = context.WithTimeout(discoverCtx, e.cfg.Timeout)
		defer cancel()
	}
	vecs, err := e.backend.Embed(discoverCtx, []string{"dimension check"})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("%w: discover embedding dimension: %v", ErrEmbeddingUnavailable, err)
	}
	e.dimension = len(vecs[0])
	e.ready = true
	e.logger.Info("embedding dimension discovered", "dimension", e.dimension)
	return nil
}

// Dimension is the vector length, 0 until the first successful call when
// it is discovered from the backend.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Encode returns one vector per text in input order.
func (e *Embedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.init(ctx); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	size := e.cfg.BatchSize
	batches := (len(texts) + size - 1) / size
	out := make([][]float32, len(texts))

	err := e.pool.Run(ctx, batches, func(ctx context.Context, b int) error {
		start := b * size
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.backend.Embed(ctx, texts[start:end])
		if err != nil {
			return err
		}
		if len(vecs) != end-start {
			return fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), end-start)
		}
		for i, v := range vecs {
			if len(v) != e.dimension {
				return fmt.Errorf("vector dimension %d, expected %d", len(v), e.dimension)
			}
			if e.cfg.Normalize {
				v = l2Normalize(v)
			}
			out[start+i] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	return out, nil
}

// EncodeOne embeds a single text through the same batch path.
func (e *Embedder) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
