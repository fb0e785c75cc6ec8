package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"enterprise-kb/internal/ai"
	"enterprise-kb/internal/app"
	"enterprise-kb/internal/bootstrap"
	"enterprise-kb/internal/config"
	"enterprise-kb/internal/model"
	"enterprise-kb/internal/platform/mysql"
	"enterprise-kb/internal/transport/http/response"
	"enterprise-kb/internal/vectorindex"
)

const dimension = 256

type wordHash struct{}

func (wordHash) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dimension)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,?!:;")
			if w == "" {
				continue
			}
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			vec[h.Sum32()%dimension]++
		}
		vec[dimension-1] += 0.01
		out[i] = vec
	}
	return out, nil
}

type echoGenerator struct{}

func (echoGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	return "answer to: " + messages[len(messages)-1].Content, nil
}

func (g echoGenerator) StreamComplete(ctx context.Context, messages []ai.ChatMessage, onChunk func(string) error) (string, error) {
	text, _ := g.Complete(ctx, messages)
	for _, part := range strings.SplitAfter(text, " ") {
		if err := onChunk(part); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (echoGenerator) Model() string { return "echo" }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	app    *bootstrap.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.toml"))
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.App.GinMode = gin.TestMode
	cfg.Embedding.Dimension = dimension
	cfg.Vector.Dimension = dimension
	cfg.Vector.Backend = "memory"
	cfg.Rerank.Enabled = false
	cfg.RabbitMQ.URL = ""
	cfg.Storage.Path = filepath.Join(t.TempDir(), "uploads")
	cfg.Storage.MaxFileSize = 64 * 1024

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kb.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, mysql.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	a := &bootstrap.App{
		Config:    cfg,
		MySQL:     db,
		Redis:     rdb,
		Index:     vectorindex.NewMemoryIndex(dimension),
		StartedAt: time.Now(),
	}
	t.Cleanup(func() { _ = a.Close() })

	a.Services, err = bootstrap.NewServices(bootstrap.Deps{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Index:  a.Index,
		Backends: bootstrap.Backends{
			Embedding: wordHash{},
			Generator: echoGenerator{},
		},
	})
	require.NoError(t, err)

	return &testServer{router: NewRouter(a), app: a}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *testServer) register(t *testing.T, username, department string) string {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":      username,
		"email":         username + "@example.com",
		"password":      "password123",
		"department_id": department,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func (s *testServer) upload(t *testing.T, token, filename, content string, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthzReportsDependencies(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		App          string                    `json:"app"`
		Dependencies map[string]map[string]any `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "enterprise-kb", body.App)
	for _, dep := range []string{"mysql", "redis", "rabbitmq", "vector_index"} {
		assert.Equal(t, true, body.Dependencies[dep]["ok"], dep)
	}
	assert.Equal(t, "disabled", body.Dependencies["rabbitmq"]["message"])
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice", "eng")

	rec, env := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, env.Data)
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, "eng", me["department_id"])
	assert.Equal(t, false, me["is_superuser"])

	rec, env = s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeUnauthorized, env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeInvalidCredentials, env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeUsernameExists, env.Code)
}

func TestUploadAskAndConversationLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "eng")
	bob := s.register(t, "bob", "sales")

	rec, env := s.upload(t, alice, "policy.txt", "reimbursement policy requires manager approval", map[string]string{
		"title":            "Expense policy",
		"permission_level": "public",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[model.Document](t, env.Data)
	assert.Equal(t, "Expense policy", doc.Title)
	assert.Equal(t, model.DocumentStatusIndexed, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)

	rec, env = s.do(t, http.MethodGet, "/api/v1/documents?page_size=5", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[app.DocumentPage](t, env.Data)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.PageSize)

	rec, env = s.do(t, http.MethodPost, "/api/v1/chat/completions", bob, gin.H{
		"query":           "reimbursement policy",
		"score_threshold": 0.1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	answer := decode[app.AskResult](t, env.Data)
	assert.True(t, answer.HasContext)
	assert.Equal(t, "answer to: reimbursement policy", answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, doc.ID, answer.Sources[0].DocumentID)
	assert.Equal(t, "Expense policy", answer.Sources[0].Title)
	assert.NotEmpty(t, answer.MessageID)

	rec, env = s.do(t, http.MethodGet, "/api/v1/conversations", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	convs := decode[app.ConversationPage](t, env.Data)
	require.EqualValues(t, 1, convs.Total)
	assert.Equal(t, answer.ConversationID, convs.Items[0].ID)

	path := "/api/v1/conversations/" + answer.ConversationID
	rec, env = s.do(t, http.MethodGet, path, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[app.ConversationDetail](t, env.Data)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, model.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, answer.Answer, detail.Messages[1].Content)

	rec, env = s.do(t, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeConversationNotFound, env.Code)

	rec, _ = s.do(t, http.MethodDelete, path, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = s.do(t, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeConversationNotFound, env.Code)
}

func TestChatStreamSendsDeltasThenDone(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "eng")
	rec, _ := s.upload(t, alice, "policy.txt", "reimbursement policy requires manager approval", map[string]string{
		"permission_level": "department",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := json.Marshal(gin.H{"query": "reimbursement policy", "score_threshold": 0.1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var deltas strings.Builder
	var event, done string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if event == "done" {
				done = data
			} else {
				deltas.WriteString(data)
			}
		case line == "":
			event = ""
		}
	}
	assert.Equal(t, "answer to: reimbursement policy", deltas.String())

	require.NotEmpty(t, done)
	meta := decode[app.AskResult](t, json.RawMessage(done))
	assert.True(t, meta.HasContext)
	assert.NotEmpty(t, meta.ConversationID)
	assert.Len(t, meta.Sources, 1)
}

func TestDocumentPermissionsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "eng")
	carol := s.register(t, "carol", "eng")
	bob := s.register(t, "bob", "sales")

	_, env := s.upload(t, alice, "rota.md", "# Oncall\n\nweekly rotation", map[string]string{"permission_level": "department"})
	doc := decode[model.Document](t, env.Data)
	path := "/api/v1/documents/" + doc.ID

	rec, _ := s.do(t, http.MethodGet, path, carol, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeDocumentNotFound, env.Code)

	rec, env = s.do(t, http.MethodDelete, path, carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, response.CodeForbidden, env.Code)

	rec, env = s.do(t, http.MethodPost, path+"/reindex", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.DocumentStatusIndexed, decode[model.Document](t, env.Data).Status)

	_, err := s.app.Services.Auth.SetSuperuser(context.Background(), "bob", true)
	require.NoError(t, err)
	_, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "bob", "password": "password123"})
	admin := decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token

	rec, _ = s.do(t, http.MethodDelete, path, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = s.do(t, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice", "eng")

	rec, env := s.upload(t, alice, "big.txt", strings.Repeat("x", 64*1024+1), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, response.CodeFileTooLarge, env.Code)

	rec, env = s.upload(t, alice, "notes.txt", "hello", map[string]string{"permission_level": "secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/v1/chat/completions", alice, gin.H{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)
}
