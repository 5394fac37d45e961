// Package telemetry exports prediction and training metrics over OTLP.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName    = "loanml"
	serviceVersion = "1.0.0"
)

// Config holds OTLP exporter settings.
type Config struct {
	Enabled  bool
	Endpoint string
	Insecure bool
	Interval time.Duration
}

// Metrics records loanml instruments. A zero Metrics is not usable; build
// one with New, NewNoop or Setup.
type Metrics struct {
	predictions metric.Int64Counter
	invalid     metric.Int64Counter
	failures    metric.Int64Counter
	filled      metric.Int64Counter
	latency     metric.Float64Histogram
	trainings   metric.Int64Counter
	trainTime   metric.Float64Histogram
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(serviceName)
	m := &Metrics{}
	var err error

	if m.predictions, err = meter.Int64Counter("loanml_predictions_total",
		metric.WithDescription("Predictions served, by decision"),
		metric.WithUnit("{prediction}")); err != nil {
		return nil, fmt.Errorf("creating predictions counter: %w", err)
	}
	if m.invalid, err = meter.Int64Counter("loanml_invalid_input_total",
		metric.WithDescription("Requests rejected for values outside the enumerated options"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("creating invalid input counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter("loanml_prediction_failures_total",
		metric.WithDescription("Requests that failed with an operator-facing error"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	if m.filled, err = meter.Int64Counter("loanml_zero_filled_columns_total",
		metric.WithDescription("Schema columns zero-filled during reconciliation"),
		metric.WithUnit("{column}")); err != nil {
		return nil, fmt.Errorf("creating filled counter: %w", err)
	}
	if m.latency, err = meter.Float64Histogram("loanml_prediction_duration_seconds",
		metric.WithDescription("Reconcile plus classify latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}
	if m.trainings, err = meter.Int64Counter("loanml_trainings_total",
		metric.WithDescription("Completed training runs"),
		metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("creating trainings counter: %w", err)
	}
	if m.trainTime, err = meter.Float64Histogram("loanml_training_duration_seconds",
		metric.WithDescription("Schema build plus fit duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating training histogram: %w", err)
	}
	return m, nil
}

// NewNoop returns Metrics that record nothing.
func NewNoop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

// Setup builds Metrics backed by an OTLP gRPC exporter. When telemetry is
// disabled it returns no-op Metrics. The returned shutdown flushes pending
// exports.
func Setup(ctx context.Context, cfg Config) (*Metrics, func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return NewNoop(), nop, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nop, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, nop, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	m, err := New(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, nop, err
	}
	return m, provider.Shutdown, nil
}

func decision(approved bool) attribute.KeyValue {
	if approved {
		return attribute.String("decision", "approved")
	}
	return attribute.String("decision", "rejected")
}

// RecordPrediction records one served prediction.
func (m *Metrics) RecordPrediction(ctx context.Context, approved bool, filled int, d time.Duration) {
	m.predictions.Add(ctx, 1, metric.WithAttributes(decision(approved)))
	if filled > 0 {
		m.filled.Add(ctx, int64(filled))
	}
	m.latency.Record(ctx, d.Seconds())
}

// RecordInvalidInput records a request rejected at the input boundary.
func (m *Metrics) RecordInvalidInput(ctx context.Context) { m.invalid.Add(ctx, 1) }

// RecordFailure records a request that failed for an operator-facing reason.
func (m *Metrics) RecordFailure(ctx context.Context) { m.failures.Add(ctx, 1) }

// RecordTraining records a completed training run.
func (m *Metrics) RecordTraining(ctx context.Context, rows int, d time.Duration) {
	m.trainings.Add(ctx, 1, metric.WithAttributes(attribute.Int("rows", rows)))
	m.trainTime.Record(ctx, d.Seconds())
}
