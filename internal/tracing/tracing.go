// Package tracing configures OpenTelemetry for sagalog.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by the engine and driver.
const InstrumentationName = "github.com/roach88/sagalog"

// Span attribute keys.
const (
	AttrSagaID     = attribute.Key("saga.id")
	AttrStepID     = attribute.Key("step.id")
	AttrStepName   = attribute.Key("step.name")
	AttrStepState  = attribute.Key("step.state")
	AttrStepResult = attribute.Key("step.outcome")
)

// Config describes the OTLP exporter.
type Config struct {
	ServiceName string

	// Endpoint is the OTLP/HTTP collector host:port. Tracing is disabled
	// when empty.
	Endpoint string

	Insecure bool
}

// Init installs a global tracer provider exporting to cfg.Endpoint and
// returns its shutdown function. With no endpoint it leaves the global
// no-op provider in place and returns a no-op shutdown.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "sagalog"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the sagalog tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
