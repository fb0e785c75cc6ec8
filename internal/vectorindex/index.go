// Package vectorindex stores chunk embeddings with their permission fields
// and answers filtered nearest-neighbour queries over them.
package vectorindex

import (
	"context"
	"errors"
)

var (
	ErrUnavailable        = errors.New("vector index unavailable")
	ErrInvalidFilterValue = errors.New("invalid filter value")
)

// Chunk is the unit stored in the index.
type Chunk struct {
	ID              string
	DocumentID      string
	Content         string
	Embedding       []float32
	DepartmentID    string
	PermissionLevel string
	OwnerID         string
	ChunkIndex      int64
	CreatedAt       int64
}

// Hit is a search result. Score is the inner product with the query.
type Hit struct {
	ChunkID         string
	DocumentID      string
	Content         string
	DepartmentID    string
	PermissionLevel string
	OwnerID         string
	ChunkIndex      int64
	Score           float32
}

type Index interface {
	// EnsureCollection creates the collection and its payload indexes if missing.
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, chunks []Chunk) error
	// Search returns up to topK hits by descending score. A nil filter matches everything.
	Search(ctx context.Context, embedding []float32, topK int, filter Expr) ([]Hit, error)
	// DeleteByDocument is a no-op when the document has no chunks.
	DeleteByDocument(ctx context.Context, documentID string) error
	// Flush makes earlier writes visible to Search.
	Flush(ctx context.Context) error
	Count(ctx context.Context, filter Expr) (uint64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Field names of the stored payload.
const (
	FieldID              = "id"
	FieldDocumentID      = "document_id"
	FieldContent         = "content"
	FieldDepartmentID    = "department_id"
	FieldPermissionLevel = "permission_level"
	FieldOwnerID         = "owner_id"
	FieldChunkIndex      = "chunk_index"
	FieldCreatedAt       = "created_at"
)

// keywordFields get an equality index and are the only fields filters may use.
var keywordFields = []string{FieldDocumentID, FieldDepartmentID, FieldPermissionLevel, FieldOwnerID}
