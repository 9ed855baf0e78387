// Package observability wires OpenTelemetry tracing and Prometheus metrics
// for the endpoint server. Tracing is opt-in; when disabled every helper
// degrades to a no-op so callers never branch on it.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
)

// TracingConfig holds configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
}

// DefaultTracingConfig returns tracing settings suitable for local development.
func DefaultTracingConfig(serviceName, serviceVersion string) TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
	}
}

// TracingManager owns the tracer provider lifecycle. The executor and server
// layers pick up the globally registered provider via otel.Tracer, so the
// only coupling is init and shutdown.
type TracingManager struct {
	logger   *zap.Logger
	config   TracingConfig
	provider *trace.TracerProvider
	enabled  bool
}

// NewTracingManager initializes OpenTelemetry tracing. When cfg.Enabled is
// false the manager is inert and spans produced elsewhere are no-ops.
func NewTracingManager(logger *zap.Logger, cfg TracingConfig) (*TracingManager, error) {
	tm := &TracingManager{
		logger:  logger,
		config:  cfg,
		enabled: cfg.Enabled,
	}

	if !cfg.Enabled {
		logger.Debug("OpenTelemetry tracing disabled")
		return tm, nil
	}

	if err := tm.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	logger.Info("OpenTelemetry tracing initialized",
		zap.String("service_name", cfg.ServiceName),
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
		zap.Float64("sample_rate", cfg.SampleRate))

	return tm, nil
}

func (tm *TracingManager) initTracing() error {
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(tm.config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tm.config.ServiceName),
			semconv.ServiceVersionKey.String(tm.config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tm.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(tm.config.SampleRate)),
	)

	otel.SetTracerProvider(tm.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return nil
}

// Close flushes pending spans and shuts down the provider.
func (tm *TracingManager) Close(ctx context.Context) error {
	if !tm.enabled || tm.provider == nil {
		return nil
	}

	tm.logger.Info("Shutting down OpenTelemetry tracing")
	return tm.provider.Shutdown(ctx)
}

// IsEnabled returns whether tracing is enabled.
func (tm *TracingManager) IsEnabled() bool {
	return tm.enabled
}
