package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/iamvkosarev/rag-chat-bot/config"
	"github.com/iamvkosarev/rag-chat-bot/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/iamvkosarev/rag-chat-bot/internal/usecase"

	maxErrorBodyBytes = 512
)

var (
	ErrQueryFailed        = errors.New("query failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

type chatRequest struct {
	Query string `json:"query"`
}

// QueryUsecase talks to the search backend. It does not retry.
type QueryUsecase struct {
	cfg       config.Backend
	client    *http.Client
	chatURL   string
	healthURL string
	tracer    trace.Tracer
}

// NewQueryUsecase creates the dispatcher. A nil client means http.DefaultClient.
func NewQueryUsecase(cfg config.Backend, client *http.Client) (*QueryUsecase, error) {
	chatURL, err := url.JoinPath(cfg.BaseURL, cfg.ChatPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build chat url: %w", err)
	}
	healthURL, err := url.JoinPath(cfg.BaseURL, cfg.HealthPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build health url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &QueryUsecase{
		cfg:       cfg,
		client:    client,
		chatURL:   chatURL,
		healthURL: healthURL,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Ask sends query to the chat endpoint as is. Every failure is wrapped in ErrQueryFailed.
func (q *QueryUsecase) Ask(ctx context.Context, query string) (model.Answer, error) {
	ctx, span := q.tracer.Start(ctx, "rag.query")
	defer span.End()

	answer, err := q.ask(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Answer{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	span.SetAttributes(attribute.Int("rag.sources", len(answer.Sources)))
	return answer, nil
}

func (q *QueryUsecase) ask(ctx context.Context, query string) (model.Answer, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(chatRequest{Query: query})
	if err != nil {
		return model.Answer{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.chatURL, bytes.NewReader(body))
	if err != nil {
		return model.Answer{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return model.Answer{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err = checkStatus(resp); err != nil {
		return model.Answer{}, err
	}

	var answer model.Answer
	if err = json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return model.Answer{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if answer.Sources == nil {
		answer.Sources = make([]model.SourceReference, 0)
	}
	return answer, nil
}

// Health checks that the backend answers on its health endpoint.
func (q *QueryUsecase) Health(ctx context.Context) error {
	ctx, span := q.tracer.Start(ctx, "rag.health")
	defer span.End()

	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	err := q.health(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

func (q *QueryUsecase) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (q *QueryUsecase) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, q.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
