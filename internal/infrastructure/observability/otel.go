package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/zatekoja/nhs-data-integration/pipeline"

// Metrics holds the pipeline's counters and histograms
type Metrics struct {
	RecordsRead     metric.Int64Counter
	RecordsValid    metric.Int64Counter
	RecordsRejected metric.Int64Counter
	RowsLoaded      metric.Int64Counter
	StageDuration   metric.Float64Histogram
}

// Setup initializes OpenTelemetry trace and metric providers with OTLP
// gRPC exporters. The returned function shuts both down.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return err
		}
		return tracerProvider.Shutdown(ctx)
	}

	return shutdown, nil
}

// InitMetrics initializes the pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(scopeName)

	recordsRead, err := meter.Int64Counter(
		"pipeline.records.read",
		metric.WithDescription("Raw records read per source"),
	)
	if err != nil {
		return nil, err
	}

	recordsValid, err := meter.Int64Counter(
		"pipeline.records.valid",
		metric.WithDescription("Records passing identity validation"),
	)
	if err != nil {
		return nil, err
	}

	recordsRejected, err := meter.Int64Counter(
		"pipeline.records.rejected",
		metric.WithDescription("Records rejected by identity validation"),
	)
	if err != nil {
		return nil, err
	}

	rowsLoaded, err := meter.Int64Counter(
		"pipeline.rows.loaded",
		metric.WithDescription("Rows written to the warehouse"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Pipeline stage duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RecordsRead:     recordsRead,
		RecordsValid:    recordsValid,
		RecordsRejected: recordsRejected,
		RowsLoaded:      rowsLoaded,
		StageDuration:   stageDuration,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(scopeName)
	return tracer.Start(ctx, spanName)
}

// RecordSourceCounts records per-source validation counters
func (m *Metrics) RecordSourceCounts(ctx context.Context, source string, read, valid, rejected int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pipeline.source", source))
	m.RecordsRead.Add(ctx, read, attrs)
	m.RecordsValid.Add(ctx, valid, attrs)
	m.RecordsRejected.Add(ctx, rejected, attrs)
}

// RecordLoaded records rows loaded into one warehouse table
func (m *Metrics) RecordLoaded(ctx context.Context, table string, rows int64) {
	if m == nil {
		return
	}
	m.RowsLoaded.Add(ctx, rows, metric.WithAttributes(attribute.String("warehouse.table", table)))
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("pipeline.stage", stage)))
}
