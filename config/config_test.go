package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/chat", cfg.Backend.ChatPath)
	assert.Equal(t, "/api/health", cfg.Backend.HealthPath)
	assert.Zero(t, cfg.Backend.Timeout)
	assert.Equal(t, StorageMemory, cfg.Conversation.Storage)
	assert.Equal(t, time.Hour, cfg.Conversation.IdleTimeout)
	assert.Equal(t, "en", cfg.Conversation.Language)
	assert.Equal(t, 160, cfg.Conversation.PreviewLength)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RAG_BACKEND_URL", "http://search-api:8001")
	t.Setenv("RAG_CHAT_PATH", "/chat")
	t.Setenv("CONVERSATION_STORAGE", "redis")
	t.Setenv("CONVERSATION_LANGUAGE", "ja")
	t.Setenv("RAG_BACKEND_TIMEOUT", "30s")

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "http://search-api:8001", cfg.Backend.BaseURL)
	assert.Equal(t, "/chat", cfg.Backend.ChatPath)
	assert.Equal(t, StorageRedis, cfg.Conversation.Storage)
	assert.Equal(t, "ja", cfg.Conversation.Language)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: http://proxy:3000
conversation:
  idle_timeout: 10m
  preview_length: 80
telegram:
  api_token: token
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "http://proxy:3000", cfg.Backend.BaseURL)
	assert.Equal(t, "/api/chat", cfg.Backend.ChatPath)
	assert.Equal(t, 10*time.Minute, cfg.Conversation.IdleTimeout)
	assert.Equal(t, 80, cfg.Conversation.PreviewLength)
	assert.Equal(t, "token", cfg.Telegram.TelegramAPIToken)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"CONVERSATION_STORAGE":    "postgres",
		"CONVERSATION_LANGUAGE":   "fr",
		"RAG_BACKEND_URL":         "not a url",
		"RAG_CHAT_PATH":           "api/chat",
		"CITATION_PREVIEW_LENGTH": "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)

			_, err := LoadConfig("")

			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}
