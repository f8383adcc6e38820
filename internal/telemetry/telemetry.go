// Package telemetry wires OpenTelemetry for the chat pipeline: OTLP/HTTP
// trace and metric exporters plus the attribute keys every service shares.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on chat spans and metrics.
const (
	TenantKey     = attribute.Key("aurum.tenant_id")
	IntentKey     = attribute.Key("aurum.intent")
	StageKey      = attribute.Key("aurum.stage")
	HandoffKey    = attribute.Key("aurum.handoff")
	ReasonKey     = attribute.Key("aurum.guardrail.reason")
	ValidKey      = attribute.Key("aurum.guardrail.valid")
	SourceKey     = attribute.Key("aurum.intent.source")
	ConfidenceKey = attribute.Key("aurum.confidence")
	RecoveredKey  = attribute.Key("aurum.recovered")
)

// Tenant returns the tenant attribute. Contact IDs are phone numbers and are
// never exported.
func Tenant(id uuid.UUID) attribute.KeyValue {
	return TenantKey.String(id.String())
}

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Config selects where spans and metrics go.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string

	// Zero values fall back to 5s and 15s.
	BatchTimeout   time.Duration
	MetricInterval time.Duration
}

// Init installs global tracer and meter providers. With no endpoint the
// otel no-op providers stay in place and the returned Shutdown does nothing.
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = 15 * time.Second
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	// Messaging webhooks forward traceparent so the pipeline span joins
	// the caller's trace.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	), nil
}

// Meter returns the global meter for an instrumentation scope such as
// "aurum/chat".
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Tracer returns the global tracer for an instrumentation scope.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
