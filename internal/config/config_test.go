package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 10, cfg.RAG.TopK)
	assert.InDelta(t, 0.5, cfg.RAG.ScoreThreshold, 1e-9)
	assert.True(t, cfg.Rerank.Enabled)
	assert.Equal(t, 1024, cfg.Vector.Dimension)
	assert.Equal(t, 16, cfg.Vector.HNSWM)
	assert.Equal(t, 256, cfg.Vector.EfConstruct)
	assert.Equal(t, 64, cfg.Vector.SearchEf)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.9, cfg.LLM.TopP, 1e-9)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[rag]
chunk_size = 256
top_k = 4

[vector]
backend = "memory"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "7")
	t.Setenv("RAG_SCORE_THRESHOLD", "0")
	t.Setenv("RERANK_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.RAG.ChunkSize)
	assert.Equal(t, 7, cfg.RAG.TopK)
	assert.Zero(t, cfg.RAG.ScoreThreshold)
	assert.False(t, cfg.Rerank.Enabled)
	assert.Equal(t, "memory", cfg.Vector.Backend)
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("EMBEDDING_DIMENSION", "768")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOverlapNotBelowChunkSize(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("RAG_CHUNK_SIZE", "200")
	t.Setenv("RAG_CHUNK_OVERLAP", "200")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rag.chunk_overlap")

	t.Setenv("RAG_CHUNK_OVERLAP", "199")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 199, cfg.RAG.ChunkOverlap)
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_BOOL", "maybe")
	t.Setenv("SOME_FLOAT", "")

	assert.Equal(t, 3, getEnvAsInt("SOME_INT", 3))
	assert.True(t, getEnvAsBool("SOME_BOOL", true))
	assert.InDelta(t, 1.5, getEnvAsFloat("SOME_FLOAT", 1.5), 1e-9)
}
