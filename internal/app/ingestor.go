package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"enterprise-kb/internal/chunker"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/parser"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/repository"
	"enterprise-kb/internal/vectorindex"
)

// Ingestor turns a stored document into indexed chunks.
type Ingestor struct {
	documents *repository.DocumentRepository
	parser    *parser.Parser
	chunker   *chunker.Chunker
	embedder  TextEmbedder
	index     vectorindex.Index
	logger    *slog.Logger
}

func NewIngestor(
	documents *repository.DocumentRepository,
	p *parser.Parser,
	c *chunker.Chunker,
	embedder TextEmbedder,
	index vectorindex.Index,
) *Ingestor {
	return &Ingestor{
		documents: documents,
		parser:    p,
		chunker:   c,
		embedder:  embedder,
		index:     index,
		logger:    logging.NewModuleLogger("app", "ingestor"),
	}
}

// Index runs the whole pipeline for one document. On any failure the
// document is marked failed with the error message and the error is returned.
// A document that is not pending may already have chunks in the index; they
// are dropped before the new ones are inserted.
func (i *Ingestor) Index(ctx context.Context, documentID string) error {
	doc, err := i.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	stale := doc.Status != model.DocumentStatusPending || doc.ChunkCount > 0
	doc.Status = model.DocumentStatusProcessing
	doc.ErrorMessage = ""
	if err := i.documents.Save(ctx, doc); err != nil {
		return err
	}

	start := time.Now()
	if stale {
		err = i.Remove(ctx, doc.ID)
	}
	var count int
	if err == nil {
		count, err = i.run(ctx, doc)
	}
	if err != nil {
		i.markFailed(ctx, doc, err)
		return err
	}

	now := time.Now()
	doc.Status = model.DocumentStatusIndexed
	doc.ChunkCount = count
	doc.IndexedAt = &now
	if err := i.documents.Save(ctx, doc); err != nil {
		return err
	}

	i.logger.Info("document indexed",
		"document_id", doc.ID,
		"source_type", doc.SourceType,
		"chunks", count,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (i *Ingestor) run(ctx context.Context, doc *model.Document) (int, error) {
	extraction, err := i.parser.Extract(ctx, doc.FilePath, doc.SourceType)
	if err != nil {
		return 0, err
	}

	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	doc.Metadata[model.MetaExtractionReport] = extraction.Report()
	if doc.SourceType == model.SourceTypeHTML && extraction.HTML != "" {
		doc.Metadata[model.MetaOriginalHTML] = extraction.HTML
		doc.Metadata[model.MetaHasImages] = parser.HasImages(extraction.HTML)
	}

	pieces := i.chunker.Split(extraction.Text, doc.SourceType, map[string]any{
		"document_id": doc.ID,
		"title":       doc.Title,
		"source_type": string(doc.SourceType),
	})
	if len(pieces) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pieces))
	for n, p := range pieces {
		texts[n] = p.Content
	}
	embeddings, err := i.embedder.Encode(ctx, texts)
	if err != nil {
		return 0, err
	}

	createdAt := time.Now().Unix()
	ownerID := strconv.FormatUint(uint64(doc.OwnerID), 10)
	chunks := make([]vectorindex.Chunk, len(pieces))
	for n, p := range pieces {
		chunks[n] = vectorindex.Chunk{
			ID:              uuid.NewString(),
			DocumentID:      doc.ID,
			Content:         p.Content,
			Embedding:       embeddings[n],
			DepartmentID:    doc.DepartmentID,
			PermissionLevel: string(doc.PermissionLevel),
			OwnerID:         ownerID,
			ChunkIndex:      chunkIndex(p, n),
			CreatedAt:       createdAt,
		}
	}

	if err := i.index.Insert(ctx, chunks); err != nil {
		return 0, err
	}
	if err := i.index.Flush(ctx); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func chunkIndex(c chunker.Chunk, fallback int) int64 {
	if v, ok := c.Metadata[chunker.MetaChunkIndex].(int); ok {
		return int64(v)
	}
	return int64(fallback)
}

// markFailed records the failure even when ctx was cancelled.
func (i *Ingestor) markFailed(ctx context.Context, doc *model.Document, cause error) {
	doc.Status = model.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	if err := i.documents.Save(context.WithoutCancel(ctx), doc); err != nil {
		i.logger.Error("save failed status failed", "document_id", doc.ID, "error", err)
	}
	level := slog.LevelError
	if errors.Is(cause, parser.ErrUnsupportedFormat) {
		level = slog.LevelWarn
	}
	i.logger.Log(ctx, level, "document indexing failed", "document_id", doc.ID, "error", cause)
}

// Remove deletes every chunk of the document from the index. It is a
// no-op for documents that have none.
func (i *Ingestor) Remove(ctx context.Context, documentID string) error {
	if err := i.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("remove document chunks failed: %w", err)
	}
	if err := i.index.Flush(ctx); err != nil {
		return fmt.Errorf("remove document chunks failed: %w", err)
	}
	return nil
}

// Reindex is Remove followed by Index. If Index fails the document is left
// with no chunks and status failed.
func (i *Ingestor) Reindex(ctx context.Context, documentID string) error {
	if err := i.Remove(ctx, documentID); err != nil {
		return err
	}
	return i.Index(ctx, documentID)
}
