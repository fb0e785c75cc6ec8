package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"enterprise-kb/internal/app"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/parser"
	"enterprise-kb/internal/pkg/logging"
	"enterprise-kb/internal/platform/rabbitmq"
)

// DocumentIndexer is the part of the ingestor a worker drives.
type DocumentIndexer interface {
	Index(ctx context.Context, documentID string) error
	Reindex(ctx context.Context, documentID string) error
}

// IndexWorker consumes index jobs one at a time per channel. Failed jobs
// are not requeued: the document already records the failure. Close waits
// for the job in progress to finish.
type IndexWorker struct {
	conn      *amqp.Connection
	indexer   DocumentIndexer
	queueName string
	prefetch  int
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexWorker(conn *amqp.Connection, indexer DocumentIndexer, queueName string, prefetch int) *IndexWorker {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &IndexWorker{
		conn:      conn,
		indexer:   indexer,
		queueName: queueName,
		prefetch:  prefetch,
		logger:    logging.NewModuleLogger("worker", "index"),
	}
}

func (w *IndexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.logger.Info("index worker started", "queue", w.queueName, "prefetch", w.prefetch)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				w.process(workerCtx, d.Body, d)
			}
		}
	}()

	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// process runs one job on a context that shutdown does not cancel.
func (w *IndexWorker) process(ctx context.Context, body []byte, ack acknowledger) {
	if err := w.handle(context.WithoutCancel(ctx), body); err != nil {
		_ = ack.Nack(false, false)
		return
	}
	_ = ack.Ack(false)
}

func (w *IndexWorker) handle(ctx context.Context, body []byte) error {
	var job model.IndexJob
	if err := json.Unmarshal(body, &job); err != nil || job.DocumentID == "" {
		w.logger.Error("decode index job failed", "error", err, "body", string(body))
		return fmt.Errorf("decode index job failed: %w", errors.Join(err, app.ErrInvalidInput))
	}

	var err error
	if job.Reindex {
		err = w.indexer.Reindex(ctx, job.DocumentID)
	} else {
		err = w.indexer.Index(ctx, job.DocumentID)
	}
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, app.ErrDocumentNotFound) || errors.Is(err, parser.ErrUnsupportedFormat) {
			level = slog.LevelWarn
		}
		w.logger.Log(ctx, level, "index job failed",
			"document_id", job.DocumentID,
			"reindex", job.Reindex,
			"error", err,
		)
		return err
	}
	return nil
}

func (w *IndexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
