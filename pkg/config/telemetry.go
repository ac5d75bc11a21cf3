package config

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/version"
)

const stdoutEndpoint = "stdout"

type Telemetry struct {
	ctx    context.Context
	metric *metric.MeterProvider
	trace  *trace.TracerProvider
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
	defer cancel()
	err := errors.Join(t.metric.Shutdown(ctx), t.trace.Shutdown(ctx))
	if err != nil {
		log.Warn("telemetry shutdown", log.ErrorField(err))
	}
}

// SetupTelemetry installs global meter and tracer providers exporting to
// TelemetryEndpoint via OTLP/gRPC or to stdout.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "rdelta"),
		attribute.String("service.version", version.Version),
	))
	if err != nil {
		return nil, err
	}
	metricExporter, err := newMetricExporter(ctx)
	if err != nil {
		return nil, err
	}
	traceExporter, err := newTraceExporter(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Telemetry{
		ctx: ctx,
		metric: metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(metricExporter,
				metric.WithInterval(15*time.Second)))),
		trace: trace.NewTracerProvider(
			trace.WithResource(res),
			trace.WithBatcher(traceExporter)),
	}
	otel.SetMeterProvider(ret.metric)
	otel.SetTracerProvider(ret.trace)
	return ret, nil
}

func newMetricExporter(ctx context.Context) (metric.Exporter, error) {
	if TelemetryEndpoint == stdoutEndpoint {
		return stdoutmetric.New()
	}
	return otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
		otlpmetricgrpc.WithInsecure())
}

func newTraceExporter(ctx context.Context) (trace.SpanExporter, error) {
	if TelemetryEndpoint == stdoutEndpoint {
		return stdouttrace.New()
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(TelemetryEndpoint),
		otlptracegrpc.WithInsecure())
}
