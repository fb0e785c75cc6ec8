package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enterprise-kb/internal/model"
)

const handbook = `# Employee Handbook

Welcome to the company. This handbook explains how we work together.

## Leave

Full-time employees receive twenty days of paid leave per year. Unused days roll over once.

## Expenses

Submit receipts within thirty days. Reimbursements require manager approval before payment.

### Travel

Book economy class for flights under six hours. Hotels must stay under the city limit.`

func TestReindexLeavesSameChunkCount(t *testing.T) {
	h := newHarness(t, withChunkSize(80))
	ctx := context.Background()

	doc := h.upload(t, engOwner, "handbook.md", handbook, model.PermissionDepartment)
	require.Equal(t, model.DocumentStatusIndexed, doc.Status)
	require.Greater(t, doc.ChunkCount, 1)
	assert.EqualValues(t, doc.ChunkCount, h.chunkCount(t, doc.ID))

	require.NoError(t, h.ingestor.Reindex(ctx, doc.ID))
	require.NoError(t, h.ingestor.Reindex(ctx, doc.ID))

	again, err := h.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, again.Status)
	assert.Equal(t, doc.ChunkCount, again.ChunkCount)
	assert.EqualValues(t, doc.ChunkCount, h.chunkCount(t, doc.ID))

	fresh := h.upload(t, engOwner, "copy.md", handbook, model.PermissionDepartment)
	assert.Equal(t, doc.ChunkCount, fresh.ChunkCount)
}

func TestIndexTwiceReplacesChunks(t *testing.T) {
	h := newHarness(t, withChunkSize(80))
	ctx := context.Background()

	doc := h.upload(t, engOwner, "handbook.md", handbook, model.PermissionDepartment)
	require.Equal(t, model.DocumentStatusIndexed, doc.Status)

	require.NoError(t, h.ingestor.Index(ctx, doc.ID))

	again, err := h.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, again.Status)
	assert.Equal(t, doc.ChunkCount, again.ChunkCount)
	assert.EqualValues(t, doc.ChunkCount, h.chunkCount(t, doc.ID))
}

func TestIndexCopiesPermissionFields(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, engOwner, "eng.txt", "deploy checklist for releases", model.PermissionDepartment)

	hits, err := h.index.Search(context.Background(), make([]float32, testDimension), 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].DocumentID)
	assert.Equal(t, "eng", hits[0].DepartmentID)
	assert.Equal(t, string(model.PermissionDepartment), hits[0].PermissionLevel)
	assert.Equal(t, "1", hits[0].OwnerID)
	assert.Len(t, hits[0].ChunkID, 36)
	assert.Zero(t, hits[0].ChunkIndex)
}

func TestIndexUnsupportedFormatMarksFailed(t *testing.T) {
	h := newHarness(t)
	ok := h.upload(t, engOwner, "ok.txt", "quarterly planning notes", model.PermissionPublic)

	doc := h.upload(t, engOwner, "sheet.xlsx", "a,b,c", model.PermissionPublic)
	assert.Equal(t, model.SourceTypeExcel, doc.SourceType)
	assert.Equal(t, model.DocumentStatusFailed, doc.Status)
	assert.Contains(t, doc.ErrorMessage, "unsupported")
	assert.Zero(t, doc.ChunkCount)
	assert.Zero(t, h.chunkCount(t, doc.ID))

	assert.EqualValues(t, 1, h.chunkCount(t, ok.ID))
}

func TestIndexMissingFileMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := &model.Document{
		ID:              "0b7d2c5e-8f5a-4f7e-9a3c-1d2e3f4a5b6c",
		Title:           "gone",
		SourceType:      model.SourceTypeText,
		FilePath:        "/nonexistent/file.txt",
		OwnerID:         1,
		PermissionLevel: model.PermissionPublic,
		Status:          model.DocumentStatusPending,
	}
	require.NoError(t, h.documents.Create(ctx, doc))

	err := h.ingestor.Index(ctx, doc.ID)
	require.Error(t, err)

	got, err := h.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)

	assert.ErrorIs(t, h.ingestor.Index(ctx, "missing"), ErrDocumentNotFound)
}

func TestIndexEmptyDocumentHasNoChunks(t *testing.T) {
	h := newHarness(t)
	doc := h.upload(t, engOwner, "blank.txt", "  \n\n  ", model.PermissionPublic)

	assert.Equal(t, model.DocumentStatusIndexed, doc.Status)
	assert.Zero(t, doc.ChunkCount)
	assert.NotNil(t, doc.IndexedAt)
	assert.Zero(t, h.embedBackend.calls.Load())
}

func TestIndexHTMLKeepsOriginalMarkup(t *testing.T) {
	h := newHarness(t)
	markup := `<html><head><title>x</title></head><body><h1>Onboarding guide</h1><p>Laptop setup steps.</p><img src="setup.png"></body></html>`
	doc := h.upload(t, engOwner, "guide.html", markup, model.PermissionPublic)

	require.Equal(t, model.DocumentStatusIndexed, doc.Status)
	assert.Equal(t, markup, doc.MetaString(model.MetaOriginalHTML))
	assert.True(t, doc.MetaBool(model.MetaHasImages))
	assert.Contains(t, doc.Metadata, model.MetaExtractionReport)

	res, err := h.answerer.Ask(context.Background(), AskInput{Query: "laptop setup", Principal: engOwner, ScoreThreshold: ptr(float32(0.2))})
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, markup, res.Sources[0].HTMLContent)
	assert.True(t, res.Sources[0].HasImages)
	assert.True(t, strings.HasPrefix(res.Sources[0].Snippet, "Onboarding guide"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	doc := h.upload(t, engOwner, "a.txt", "security training schedule", model.PermissionPublic)

	require.NoError(t, h.ingestor.Remove(ctx, doc.ID))
	require.NoError(t, h.ingestor.Remove(ctx, doc.ID))
	assert.Zero(t, h.chunkCount(t, doc.ID))
}
