package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthBackend encodes each text as [len(text), 1] and records batch sizes.
type lengthBackend struct {
	mu      sync.Mutex
	batches []int
	err     error
}

func (b *lengthBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.mu.Lock()
	b.batches = append(b.batches, len(texts))
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestEncodeBatchesPreserveOrder(t *testing.T) {
	backend := &lengthBackend{}
	e := NewEmbedder(backend, NewPool(3), EmbedderConfig{BatchSize: 2, Dimension: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.Encode(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, backend.batches)
}

func TestBatchingDoesNotChangeVectors(t *testing.T) {
	texts := []string{"alpha", "beta", "gamma", "delta"}

	one := NewEmbedder(&lengthBackend{}, NewPool(1), EmbedderConfig{BatchSize: 1, Dimension: 2, Normalize: true})
	all := NewEmbedder(&lengthBackend{}, NewPool(1), EmbedderConfig{BatchSize: 10, Dimension: 2, Normalize: true})

	a, err := one.Encode(context.Background(), texts)
	require.NoError(t, err)
	b, err := all.Encode(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	single, err := all.EncodeOne(context.Background(), "gamma")
	require.NoError(t, err)
	assert.Equal(t, b[2], single)
}

func TestEncodeNormalizes(t *testing.T) {
	e := NewEmbedder(&lengthBackend{}, nil, EmbedderConfig{Dimension: 2, Normalize: true})
	v, err := e.EncodeOne(context.Background(), "abc")
	require.NoError(t, err)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestEncodeEmptyInputSkipsBackend(t *testing.T) {
	backend := &lengthBackend{}
	e := NewEmbedder(backend, nil, EmbedderConfig{Dimension: 2})
	vecs, err := e.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, backend.batches)
}

func TestEncodeBackendFailure(t *testing.T) {
	e := NewEmbedder(&lengthBackend{err: errors.New("model not loaded")}, nil, EmbedderConfig{Dimension: 2})
	_, err := e.Encode(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestEncodeDimensionMismatch(t *testing.T) {
	e := NewEmbedder(&lengthBackend{}, nil, EmbedderConfig{Dimension: 3})
	_, err := e.Encode(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestDimensionDiscoveredOnce(t *testing.T) {
	backend := &lengthBackend{}
	e := NewEmbedder(backend, NewPool(4), EmbedderConfig{BatchSize: 4})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EncodeOne(context.Background(), "q")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, e.Dimension())
	assert.Len(t, backend.batches, 9)
}

// flakyBackend fails its first call, then embeds every text as [1, 2, 3].
type flakyBackend struct {
	calls   int
	ctxErrs []error
}

func (b *flakyBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	b.calls++
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	if b.calls == 1 {
		return nil, errors.New("connection refused")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestDimensionDiscoveryRetriesAfterFailure(t *testing.T) {
	backend := &flakyBackend{}
	e := NewEmbedder(backend, nil, EmbedderConfig{})

	_, err := e.EncodeOne(context.Background(), "q")
	require.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Zero(t, e.Dimension())

	v, err := e.EncodeOne(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, 3, e.Dimension())
}

func TestDimensionDiscoveryIgnoresCallerCancellation(t *testing.T) {
	backend := &flakyBackend{calls: 1}
	e := NewEmbedder(backend, nil, EmbedderConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _ = e.EncodeOne(ctx, "q")
	require.NotEmpty(t, backend.ctxErrs)
	assert.NoError(t, backend.ctxErrs[0])
	assert.Equal(t, 3, e.Dimension())
}

func TestNilBackendUnavailable(t *testing.T) {
	e := NewEmbedder(nil, nil, EmbedderConfig{Dimension: 2})
	_, err := e.EncodeOne(context.Background(), "q")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestHTTPEmbeddingBackendReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body.Model)
		assert.Equal(t, []string{"a", "b"}, body.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	b := NewHTTPEmbeddingBackend(srv.URL+"/v1/", "k", "m", 0)
	vecs, err := b.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestHTTPEmbeddingBackendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewHTTPEmbeddingBackend(srv.URL, "", "m", 0)
	_, err := b.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}
