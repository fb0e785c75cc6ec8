package app

import (
	"context"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/chunker"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/parser"
	"enterprise-kb/internal/repository"
	"enterprise-kb/internal/storage"
	"enterprise-kb/internal/vectorindex"
)

const testDimension = 1024

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kb.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Document{}, &model.Conversation{}, &model.Message{}))
	return db
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "what": {}, "of": {}, "to": {}, "and": {}, "how": {}, "do": {}, "i": {},
}

// bagOfWords embeds text as hashed counts of six-letter word stems, so texts
// sharing vocabulary score high after normalization.
type bagOfWords struct {
	calls atomic.Int32
}

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDimension)
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if _, skip := stopWords[w]; skip {
				continue
			}
			if len(w) > 6 {
				w = w[:6]
			}
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%testDimension]++
		}
		vec[testDimension-1] += 0.01
		out[i] = vec
	}
	return out, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	reply  func(messages []ai.ChatMessage) string
	err    error
	prompt []ai.ChatMessage
}

func (g *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompt = messages
	if g.err != nil {
		return "", g.err
	}
	if g.reply == nil {
		return "From the knowledge base: " + firstContextBlock(messages[0].Content), nil
	}
	return g.reply(messages), nil
}

func firstContextBlock(prompt string) string {
	_, rest, ok := strings.Cut(prompt, "[Document 1]\n\n")
	if !ok {
		return ""
	}
	block, _, _ := strings.Cut(rest, "\n\n[Document 2]")
	return block
}

func (g *fakeGenerator) StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	text, err := g.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(text, " ") {
		if word == "" {
			continue
		}
		if err := onChunk(word); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (g *fakeGenerator) Model() string { return "fake-model" }

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// tableScorer scores a document by the first table key it contains.
type tableScorer struct {
	table map[string]float32
	calls atomic.Int32
}

func (s *tableScorer) Score(_ context.Context, _ string, documents []string) ([]float32, error) {
	s.calls.Add(1)
	out := make([]float32, len(documents))
	for i, d := range documents {
		for key, score := range s.table {
			if strings.Contains(d, key) {
				out[i] = score
				break
			}
		}
	}
	return out, nil
}

// recordingIndex remembers the topK of every search.
type recordingIndex struct {
	vectorindex.Index
	mu    sync.Mutex
	topKs []int
}

func (r *recordingIndex) Search(ctx context.Context, embedding []float32, topK int, filter vectorindex.Expr) ([]vectorindex.Hit, error) {
	r.mu.Lock()
	r.topKs = append(r.topKs, topK)
	r.mu.Unlock()
	return r.Index.Search(ctx, embedding, topK, filter)
}

type memoryHistory struct {
	mu      sync.Mutex
	entries map[string][]model.Message
	sets    int
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{entries: map[string][]model.Message{}}
}

func (m *memoryHistory) GetHistory(_ context.Context, id string) ([]model.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs, ok := m.entries[id]
	return msgs, ok, nil
}

func (m *memoryHistory) SetHistory(_ context.Context, id string, msgs []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = msgs
	m.sets++
	return nil
}

func (m *memoryHistory) DeleteHistory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

type harness struct {
	db            *gorm.DB
	index         *vectorindex.MemoryIndex
	embedBackend  *bagOfWords
	scorer        *tableScorer
	generator     *fakeGenerator
	history       *memoryHistory
	documents     *repository.DocumentRepository
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	embedder      *ai.Embedder
	reranker      *ai.Reranker
	retriever     *Retriever
	answerer      *Answerer
	ingestor      *Ingestor
	docService    *DocumentService
	convService   *ConversationService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	retriever RetrieverConfig
	answerer  AnswererConfig
	chunkSize int
}

func withRetrieverConfig(cfg RetrieverConfig) harnessOption {
	return func(h *harnessConfig) { h.retriever = cfg }
}

func withAnswererConfig(cfg AnswererConfig) harnessOption {
	return func(h *harnessConfig) { h.answerer = cfg }
}

func withChunkSize(n int) harnessOption {
	return func(h *harnessConfig) { h.chunkSize = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		retriever: RetrieverConfig{TopK: 10, ScoreThreshold: 0.5, RerankEnabled: false},
		chunkSize: 512,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := openTestDB(t)
	h := &harness{
		db:            db,
		index:         vectorindex.NewMemoryIndex(testDimension),
		embedBackend:  &bagOfWords{},
		scorer:        &tableScorer{table: map[string]float32{}},
		generator:     &fakeGenerator{},
		history:       newMemoryHistory(),
		documents:     repository.NewDocumentRepository(db),
		conversations: repository.NewConversationRepository(db),
		messages:      repository.NewMessageRepository(db),
	}

	pool := ai.NewPool(2)
	h.embedder = ai.NewEmbedder(h.embedBackend, pool, ai.EmbedderConfig{BatchSize: 4, Normalize: true, Dimension: testDimension})
	h.reranker = ai.NewReranker(h.scorer, pool, ai.RerankerConfig{TopK: cfg.retriever.TopK, BatchSize: 4})

	h.retriever = NewRetriever(h.embedder, h.index, h.reranker, cfg.retriever)
	h.answerer = NewAnswerer(h.retriever, h.generator, h.documents, h.conversations, h.messages, h.history, NewConversationLocks(), cfg.answerer)
	h.ingestor = NewIngestor(h.documents, parser.New(), chunker.New(chunker.WithChunkSize(cfg.chunkSize), chunker.WithOverlap(cfg.chunkSize/5)), h.embedder, h.index)

	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"), 1<<20)
	require.NoError(t, err)
	h.docService = NewDocumentService(h.documents, h.ingestor, store, nil)
	h.convService = NewConversationService(h.conversations, h.messages, h.history)
	return h
}

func (h *harness) upload(t *testing.T, owner model.Principal, filename, content string, level model.PermissionLevel) *model.Document {
	t.Helper()
	doc, err := h.docService.Upload(context.Background(), UploadInput{
		Owner:           owner,
		Filename:        filename,
		PermissionLevel: level,
		Body:            strings.NewReader(content),
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) chunkCount(t *testing.T, documentID string) uint64 {
	t.Helper()
	filter, err := vectorindex.Eq(vectorindex.FieldDocumentID, documentID)
	require.NoError(t, err)
	n, err := h.index.Count(context.Background(), filter)
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

func hitWith(documentID, content string) vectorindex.Hit {
	return vectorindex.Hit{ChunkID: documentID + "-0", DocumentID: documentID, Content: content, Score: 0.9}
}
