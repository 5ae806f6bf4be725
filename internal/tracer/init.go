package tracer

import (
	"context"
	"fmt"

	"github.com/iamvkosarev/rag-chat-bot/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Init installs the global tracer provider with an OTLP HTTP exporter and returns its shutdown
// function. When tracing is disabled the global no-op provider stays in place.
func Init(ctx context.Context, cfg config.Tracing, log *zap.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		log.Debug("tracing is disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(cfg.ServiceName),
			),
		),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracer initialized", zap.String("endpoint", cfg.Endpoint))

	return tp.Shutdown, nil
}
