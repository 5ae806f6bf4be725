package usecase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueryUsecase(t *testing.T, handler http.HandlerFunc) (*QueryUsecase, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	query, err := NewQueryUsecase(
		config.Backend{BaseURL: server.URL, ChatPath: "/api/chat", HealthPath: "/api/health"}, server.Client(),
	)
	require.NoError(t, err)
	return query, server
}

func TestQueryUsecase_Ask(t *testing.T) {
	var received chatRequest
	query, _ := newTestQueryUsecase(
		t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/chat", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			_, _ = io.WriteString(
				w, `{"answer":"It is a note tool.","sources":[{"text":"...","title":"Scrapbox Docs","url":"https://x/y","score":0.92}]}`,
			)
		},
	)

	answer, err := query.Ask(context.Background(), "  What is Scrapbox?  ")

	require.NoError(t, err)
	assert.Equal(t, "  What is Scrapbox?  ", received.Query)
	assert.Equal(t, "It is a note tool.", answer.Answer)
	assert.Equal(
		t, []model.SourceReference{{Text: "...", Title: "Scrapbox Docs", URL: "https://x/y", Score: 0.92}},
		answer.Sources,
	)
}

func TestQueryUsecase_AskWithoutSources(t *testing.T) {
	for name, body := range map[string]string{
		"null":    `{"answer":"Hello","sources":null}`,
		"missing": `{"answer":"Hello"}`,
		"empty":   `{"answer":"Hello","sources":[]}`,
	} {
		t.Run(
			name, func(t *testing.T) {
				query, _ := newTestQueryUsecase(
					t, func(w http.ResponseWriter, r *http.Request) {
						_, _ = io.WriteString(w, body)
					},
				)

				answer, err := query.Ask(context.Background(), "hi")

				require.NoError(t, err)
				assert.Equal(t, "Hello", answer.Answer)
				assert.NotNil(t, answer.Sources)
				assert.Empty(t, answer.Sources)
			},
		)
	}
}

func TestQueryUsecase_AskFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"answer":`)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `<html></html>`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				query, _ := newTestQueryUsecase(t, tt.handler)

				_, err := query.Ask(context.Background(), "hi")

				assert.ErrorIs(t, err, ErrQueryFailed)
			},
		)
	}
}

func TestQueryUsecase_AskUnreachable(t *testing.T) {
	query, server := newTestQueryUsecase(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := query.Ask(context.Background(), "hi")

	assert.ErrorIs(t, err, ErrQueryFailed)
}

func TestQueryUsecase_AskTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			},
		),
	)
	defer server.Close()
	defer close(release)

	query, err := NewQueryUsecase(
		config.Backend{BaseURL: server.URL, ChatPath: "/api/chat", HealthPath: "/api/health", Timeout: 50 * time.Millisecond},
		server.Client(),
	)
	require.NoError(t, err)

	_, err = query.Ask(context.Background(), "hi")

	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueryUsecase_AskCanceled(t *testing.T) {
	query, _ := newTestQueryUsecase(
		t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := query.Ask(ctx, "hi")

	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryUsecase_Health(t *testing.T) {
	var unhealthy atomic.Bool
	query, _ := newTestQueryUsecase(
		t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/health", r.URL.Path)
			if unhealthy.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		},
	)

	assert.NoError(t, query.Health(context.Background()))

	unhealthy.Store(true)
	assert.ErrorIs(t, query.Health(context.Background()), ErrBackendUnavailable)
}

func TestNewQueryUsecase_InvalidBaseURL(t *testing.T) {
	_, err := NewQueryUsecase(config.Backend{BaseURL: "://bad", ChatPath: "/api/chat", HealthPath: "/api/health"}, nil)
	assert.Error(t, err)
}
