package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewIsolated_WritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ragchat.log")
	log, err := NewIsolated(config.Log{File: file, Level: "info"})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("query failed", zap.Int64("chat_id", 42))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "query failed", line["message"])
	assert.Equal(t, "INFO", line["level"])
	assert.EqualValues(t, 42, line["chat_id"])
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(config.Log{File: filepath.Join(t.TempDir(), "x.log"), Level: "loud"})
	assert.Error(t, err)
}
