package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConfig(baseURL string) *config.Config {
	return &config.Config{
		Backend: config.Backend{BaseURL: baseURL, ChatPath: "/api/chat", HealthPath: "/api/health"},
		Conversation: config.Conversation{
			Storage:       config.StorageMemory,
			Language:      "en",
			PreviewLength: 160,
		},
	}
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/chat", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(
				w, `{"answer":"It is a note tool.","sources":[{"text":"Scrapbox is a note tool","title":"Scrapbox Docs","url":"https://x/y","score":0.92}]}`,
			)
		},
	)
	mux.HandleFunc(
		"/api/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		},
	)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestApp_Ask(t *testing.T) {
	backend := newBackend(t)
	a, err := New(context.Background(), newTestConfig(backend.URL), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	var out bytes.Buffer
	require.NoError(t, a.Ask(context.Background(), "What is Scrapbox?", &out))

	assert.Equal(
		t,
		"It is a note tool.\n\nCited sources (1)\n1. Scrapbox Docs (Score: 0.9200)\n   https://x/y\n   Scrapbox is a note tool\n",
		out.String(),
	)
}

func TestApp_AskWithRedisStorage(t *testing.T) {
	backend := newBackend(t)
	mr := miniredis.RunT(t)
	cfg := newTestConfig(backend.URL)
	cfg.Conversation.Storage = config.StorageRedis
	cfg.Redis.Endpoint = mr.Addr()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	var out bytes.Buffer
	require.NoError(t, a.Ask(context.Background(), "What is Scrapbox?", &out))
	assert.Contains(t, out.String(), "Scrapbox Docs")
	assert.Empty(t, mr.Keys())
}

func TestApp_ConcurrentAskWithSharedRedis(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/chat", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Query string `json:"query"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			arrived.Done()
			arrived.Wait()
			_ = json.NewEncoder(w).Encode(map[string]any{"answer": "answer to " + req.Query, "sources": []any{}})
		},
	)
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	mr := miniredis.RunT(t)
	cfg := newTestConfig(backend.URL)
	cfg.Conversation.Storage = config.StorageRedis
	cfg.Redis.Endpoint = mr.Addr()

	questions := []string{"first", "second"}
	outputs := make([]bytes.Buffer, len(questions))
	errs := make([]error, len(questions))
	var wg sync.WaitGroup
	for i, question := range questions {
		a, err := New(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		defer a.Close(context.Background())

		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs[i] = a.Ask(ctx, question, &outputs[i])
		}()
	}
	wg.Wait()

	for i, question := range questions {
		require.NoError(t, errs[i])
		assert.Equal(t, "answer to "+question+"\n", outputs[i].String())
	}
	assert.Empty(t, mr.Keys())
}

func TestApp_AskBackendFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/chat", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		},
	)
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	a, err := New(context.Background(), newTestConfig(backend.URL), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	var out bytes.Buffer
	err = a.Ask(context.Background(), "What is Scrapbox?", &out)

	assert.ErrorIs(t, err, usecase.ErrQueryFailed)
	assert.Equal(t, usecase.TextQueryFailed.Default+"\n", out.String())
}

func TestApp_BackendFailureKeepsConversationUsable(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/chat", func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `{"answer":"It is a note tool.","sources":[]}`)
		},
	)
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	a, err := New(context.Background(), newTestConfig(backend.URL), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())
	ctx := context.Background()

	q, err := a.conversation.Submit(ctx, 1, "What is Scrapbox?")
	require.NoError(t, err)
	resolution, err := q.Wait(ctx)
	require.NoError(t, err)

	assert.True(t, resolution.Failed)
	assert.False(t, resolution.Discarded)
	assert.Equal(t, usecase.TextQueryFailed.Default, resolution.Entry.Content)
	assert.False(t, resolution.Entry.HasSources())

	conversation, err := a.conversation.Conversation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, conversation.Entries, 2)
	assert.Equal(t, "What is Scrapbox?", conversation.Entries[0].Content)
	assert.Equal(t, usecase.TextQueryFailed.Default, conversation.Entries[1].Content)
	assert.False(t, conversation.Pending())

	fail.Store(false)
	q, err = a.conversation.Submit(ctx, 1, "again")
	require.NoError(t, err)
	resolution, err = q.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, resolution.Failed)
	assert.Equal(t, "It is a note tool.", resolution.Entry.Content)
}

func TestApp_Health(t *testing.T) {
	backend := newBackend(t)
	a, err := New(context.Background(), newTestConfig(backend.URL), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NoError(t, a.Health(context.Background()))
}

func TestApp_RunTelegramWithoutToken(t *testing.T) {
	a, err := New(context.Background(), newTestConfig("http://localhost:3000"), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.ErrorIs(t, a.RunTelegram(context.Background()), ErrMissingTelegramToken)
}
