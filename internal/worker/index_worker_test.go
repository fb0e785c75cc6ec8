package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"enterprise-kb/internal/app"
)

type recordingIndexer struct {
	indexed   []string
	reindexed []string
	ctxErrs   []error
	err       error
}

func (r *recordingIndexer) Index(ctx context.Context, id string) error {
	r.indexed = append(r.indexed, id)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

func (r *recordingIndexer) Reindex(_ context.Context, id string) error {
	r.reindexed = append(r.reindexed, id)
	return r.err
}

func TestHandleDispatchesJobs(t *testing.T) {
	indexer := &recordingIndexer{}
	w := NewIndexWorker(nil, indexer, "kb.document.index", 0)

	assert.NoError(t, w.handle(context.Background(), []byte(`{"document_id":"d1"}`)))
	assert.NoError(t, w.handle(context.Background(), []byte(`{"document_id":"d2","reindex":true}`)))

	assert.Equal(t, []string{"d1"}, indexer.indexed)
	assert.Equal(t, []string{"d2"}, indexer.reindexed)
	assert.Equal(t, 1, w.prefetch)
}

func TestHandleRejectsBadJobs(t *testing.T) {
	indexer := &recordingIndexer{}
	w := NewIndexWorker(nil, indexer, "q", 1)

	assert.ErrorIs(t, w.handle(context.Background(), []byte(`not json`)), app.ErrInvalidInput)
	assert.ErrorIs(t, w.handle(context.Background(), []byte(`{}`)), app.ErrInvalidInput)
	assert.Empty(t, indexer.indexed)
}

func TestHandleReturnsIndexError(t *testing.T) {
	indexer := &recordingIndexer{err: app.ErrDocumentNotFound}
	w := NewIndexWorker(nil, indexer, "q", 1)

	err := w.handle(context.Background(), []byte(`{"document_id":"gone"}`))
	assert.True(t, errors.Is(err, app.ErrDocumentNotFound))
}

type recordingAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *recordingAck) Ack(bool) error {
	a.acked++
	return nil
}

func (a *recordingAck) Nack(_ bool, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func TestProcessFinishesJobAfterShutdown(t *testing.T) {
	indexer := &recordingIndexer{}
	w := NewIndexWorker(nil, indexer, "q", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ack := &recordingAck{}
	w.process(ctx, []byte(`{"document_id":"d1"}`), ack)

	assert.Equal(t, []error{nil}, indexer.ctxErrs)
	assert.Equal(t, 1, ack.acked)
	assert.Zero(t, ack.nacked)
}

func TestProcessNacksFailedJobWithoutRequeue(t *testing.T) {
	w := NewIndexWorker(nil, &recordingIndexer{err: errors.New("embedding down")}, "q", 1)

	ack := &recordingAck{requeue: true}
	w.process(context.Background(), []byte(`{"document_id":"d1"}`), ack)

	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Zero(t, ack.acked)
}
