// Package telemetry wires OpenTelemetry tracing for the dispatch
// pipeline and the diagnostics server.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Option customizes tracing setup.
type Option func(*settings)

type settings struct {
	exporter sdktrace.SpanExporter
}

// WithExporter overrides the span exporter. Tests use an in-memory
// exporter; the default is pretty-printed stdout.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(s *settings) { s.exporter = exp }
}

// Init installs a global tracer provider tagged with the service name.
// The returned function flushes and shuts the provider down; call it
// before the process exits.
func Init(serviceName string, logger *slog.Logger, opts ...Option) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.exporter == nil {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		s.exporter = exp
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(s.exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized", slog.String("service", serviceName))
	return tp.Shutdown, nil
}
