package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MergesDefaults(t *testing.T) {
	path := writeConfig(t, `
default_model: local
models:
  - name: local
    provider: ollama
    model_name: llama3
    base_url: http://localhost:11434
rag:
  top_k: 2
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.DefaultModel)
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "ollama", cfg.Models[0].Provider)
	assert.Equal(t, 2, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, ".cache", cfg.RAG.CacheDir)
	assert.Equal(t, DefaultSessionID, cfg.Chat.DefaultSession)
	assert.True(t, cfg.Evaluation.Enabled)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "models: [::"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "default_model: nope\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `default_model "nope"`)

	_, err = LoadConfig(writeConfig(t, "rag:\n  chunk_overlap: 1000\nchat:\n  default_mode: poetry\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
	assert.Contains(t, err.Error(), "poetry")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("IMBOTRAG_TEST_KEY", "secret")
	assert.Equal(t, "secret", ResolveAPIKey("env:IMBOTRAG_TEST_KEY"))
	assert.Equal(t, "literal", ResolveAPIKey("literal"))
}
