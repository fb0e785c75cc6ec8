package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"enterprise-kb/internal/pkg/logging"
)

type QdrantConfig struct {
	Host        string
	Port        int
	APIKey      string
	UseTLS      bool
	PoolSize    int
	Collection  string
	Dimension   int
	HNSWM       int
	EfConstruct int
	SearchEf    int
	Timeout     time.Duration
}

// collectionAdmin is the part of the client EnsureCollection uses.
type collectionAdmin interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
}

// QdrantIndex keeps one pooled gRPC client for the process lifetime.
// Every write waits for the server to apply it, so Flush has nothing to do.
type QdrantIndex struct {
	client *qdrant.Client
	admin  collectionAdmin
	cfg    QdrantConfig
	logger *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		APIKey:   cfg.APIKey,
		UseTLS:   cfg.UseTLS,
		PoolSize: uint(cfg.PoolSize),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect qdrant: %w", ErrUnavailable, err)
	}
	return &QdrantIndex{
		client: client,
		admin:  client,
		cfg:    cfg,
		logger: logging.NewModuleLogger("vector", "qdrant"),
	}, nil
}

func (q *QdrantIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, q.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	exists, err := q.admin.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %w", ErrUnavailable, err)
	}
	if !exists {
		err = q.admin.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.cfg.Dimension),
				Distance: qdrant.Distance_Dot,
			}),
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           qdrant.PtrOf(uint64(q.cfg.HNSWM)),
				EfConstruct: qdrant.PtrOf(uint64(q.cfg.EfConstruct)),
			},
		})
		if err != nil {
			return fmt.Errorf("%w: create collection %s: %w", ErrUnavailable, q.cfg.Collection, err)
		}
		q.logger.Info("created collection",
			"collection", q.cfg.Collection,
			"dimension", q.cfg.Dimension,
			"hnsw_m", q.cfg.HNSWM,
			"ef_construct", q.cfg.EfConstruct,
		)
	}
	// Creating a field index that already exists is a no-op.
	for _, field := range keywordFields {
		_, err := q.admin.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("%w: index field %s: %w", ErrUnavailable, field, err)
		}
	}
	q.ensured = true
	return nil
}

func (q *QdrantIndex) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				FieldDocumentID:      c.DocumentID,
				FieldContent:         c.Content,
				FieldDepartmentID:    c.DepartmentID,
				FieldPermissionLevel: c.PermissionLevel,
				FieldOwnerID:         c.OwnerID,
				FieldChunkIndex:      c.ChunkIndex,
				FieldCreatedAt:       c.CreatedAt,
			}),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %d points: %w", ErrUnavailable, len(points), err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, embedding []float32, topK int, filter Expr) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		Filter:         ToQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.cfg.SearchEf > 0 {
		req.Params = &qdrant.SearchParams{HnswEf: qdrant.PtrOf(uint64(q.cfg.SearchEf))}
	}

	points, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrUnavailable, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, Hit{
			ChunkID:         p.GetId().GetUuid(),
			DocumentID:      payload[FieldDocumentID].GetStringValue(),
			Content:         payload[FieldContent].GetStringValue(),
			DepartmentID:    payload[FieldDepartmentID].GetStringValue(),
			PermissionLevel: payload[FieldPermissionLevel].GetStringValue(),
			OwnerID:         payload[FieldOwnerID].GetStringValue(),
			ChunkIndex:      payload[FieldChunkIndex].GetIntegerValue(),
			Score:           p.GetScore(),
		})
	}
	return hits, nil
}

func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	cond, err := Eq(FieldDocumentID, documentID)
	if err != nil {
		return err
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: ToQdrantFilter(cond)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %w", ErrUnavailable, documentID, err)
	}
	return nil
}

func (q *QdrantIndex) Flush(ctx context.Context) error {
	return ctx.Err()
}

func (q *QdrantIndex) Count(ctx context.Context, filter Expr) (uint64, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Filter:         ToQdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrUnavailable, err)
	}
	return n, nil
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%w: health check: %w", ErrUnavailable, err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// ToQdrantFilter converts an expression into a structured Qdrant filter.
// Values travel as typed match conditions, never as query text.
func ToQdrantFilter(expr Expr) *qdrant.Filter {
	switch e := expr.(type) {
	case nil:
		return nil
	case Cond:
		return &qdrant.Filter{Must: []*qdrant.Condition{condition(e)}}
	case And:
		f := &qdrant.Filter{}
		for _, sub := range e.Exprs {
			f.Must = append(f.Must, asCondition(sub))
		}
		return f
	case Or:
		f := &qdrant.Filter{}
		for _, sub := range e.Exprs {
			f.Should = append(f.Should, asCondition(sub))
		}
		return f
	}
	return nil
}

func asCondition(expr Expr) *qdrant.Condition {
	if c, ok := expr.(Cond); ok {
		return condition(c)
	}
	return qdrant.NewFilterAsCondition(ToQdrantFilter(expr))
}

func condition(c Cond) *qdrant.Condition {
	if c.Op == OpIn {
		return qdrant.NewMatchKeywords(c.Field, c.Values...)
	}
	return qdrant.NewMatch(c.Field, c.Values[0])
}
