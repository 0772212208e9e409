// Package tracing configures the OpenTelemetry trace provider the engine and
// runner emit spans through.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterOTLP   = "otlp-http"
	ExporterStdout = "stdout"
)

// Config holds the trace provider settings.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exporter selects where spans go: otlp-http (the default) or stdout.
	Exporter string

	// OTLPEndpoint is the host:port of the OTLP HTTP collector; the exporter
	// appends the path. Used only by the otlp-http exporter.
	OTLPEndpoint string

	// SampleRatio is the fraction of traces to sample. Values outside (0, 1]
	// are treated as 1.0.
	SampleRatio float64
}

// DefaultConfig returns a development-friendly configuration: every trace
// sampled, exported over OTLP HTTP to a local collector.
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Exporter:       ExporterOTLP,
		OTLPEndpoint:   "127.0.0.1:4318",
		SampleRatio:    1.0,
	}
}

// Setup initializes the global trace provider and W3C context propagation.
// The returned function shuts the provider down, flushing pending spans;
// callers should invoke it when the process exits.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Exporter == "" {
		cfg.Exporter = ExporterOTLP
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1.0
	}

	logger.Info("Setting up tracing",
		zap.String("service", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter),
		zap.String("otlpEndpoint", cfg.OTLPEndpoint),
		zap.Float64("sampleRatio", cfg.SampleRatio))

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case ExporterOTLP:
		exporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Shutdown runs the shutdown function returned by Setup with a bounded
// timeout, logging the outcome. A nil shutdown function is a no-op.
func Shutdown(shutdown func(context.Context) error, logger *zap.Logger) error {
	if shutdown == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("Tracing shutdown failed", zap.Error(err))
		return err
	}
	logger.Debug("Tracing shutdown complete")
	return nil
}
