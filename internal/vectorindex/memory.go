package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an exact in-process index. Writes are staged and only
// become visible to Search after Flush.
type MemoryIndex struct {
	dimension int

	mu        sync.RWMutex
	committed []Chunk
	staged    []Chunk
	deletes   map[string]struct{}
	closed    bool
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension, deletes: map[string]struct{}{}}
}

func (m *MemoryIndex) EnsureCollection(ctx context.Context) error {
	return m.Ping(ctx)
}

func (m *MemoryIndex) Insert(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range chunks {
		if m.dimension > 0 && len(chunks[i].Embedding) != m.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				ErrUnavailable, chunks[i].ID, len(chunks[i].Embedding), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: index closed", ErrUnavailable)
	}
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.staged = append(m.staged, c)
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, embedding []float32, topK int, filter Expr) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: index closed", ErrUnavailable)
	}

	hits := make([]Hit, 0)
	for i := range m.committed {
		c := &m.committed[i]
		if !Matches(filter, c) {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:         c.ID,
			DocumentID:      c.DocumentID,
			Content:         c.Content,
			DepartmentID:    c.DepartmentID,
			PermissionLevel: c.PermissionLevel,
			OwnerID:         c.OwnerID,
			ChunkIndex:      c.ChunkIndex,
			Score:           dot(embedding, c.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: index closed", ErrUnavailable)
	}
	m.deletes[documentID] = struct{}{}
	// Staged inserts for the document are dropped too, matching delete-then-write order.
	kept := m.staged[:0]
	for _, c := range m.staged {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	m.staged = kept
	return nil
}

func (m *MemoryIndex) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: index closed", ErrUnavailable)
	}
	if len(m.deletes) > 0 {
		kept := m.committed[:0]
		for _, c := range m.committed {
			if _, gone := m.deletes[c.DocumentID]; !gone {
				kept = append(kept, c)
			}
		}
		m.committed = kept
		m.deletes = map[string]struct{}{}
	}
	m.committed = append(m.committed, m.staged...)
	m.staged = nil
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, filter Expr) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for i := range m.committed {
		if Matches(filter, &m.committed[i]) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("%w: index closed", ErrUnavailable)
	}
	return nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
