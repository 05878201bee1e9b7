package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName scopes every instrument this service creates.
const MeterName = "github.com/hyperkishore/home-internet"

// Metrics records ingest outcomes and core operation latency.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	accepted metric.Int64Counter
	rejected metric.Int64Counter
	latency  metric.Float64Histogram
	live     metric.Int64Counter
}

// NewMetrics creates the instruments on mp. A nil provider uses a no-op meter.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(MeterName)

	accepted, err := meter.Int64Counter("speedmonitor.ingest.accepted",
		metric.WithDescription("Submissions committed to the record store"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("speedmonitor.ingest.rejected",
		metric.WithDescription("Submissions refused, by error code"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("speedmonitor.operation.duration",
		metric.WithDescription("Duration of core operations"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000))
	if err != nil {
		return nil, err
	}
	live, err := meter.Int64Counter("speedmonitor.livefeed.published",
		metric.WithDescription("Records handed to the live feed"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{accepted: accepted, rejected: rejected, latency: latency, live: live}, nil
}

// Accepted counts one committed submission.
func (m *Metrics) Accepted(ctx context.Context) {
	if m == nil {
		return
	}
	m.accepted.Add(ctx, 1)
}

// Rejected counts one refused submission under its error code.
func (m *Metrics) Rejected(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// Published counts one record queued for live subscribers.
func (m *Metrics) Published(ctx context.Context) {
	if m == nil {
		return
	}
	m.live.Add(ctx, 1)
}

// ObserveOperation records how long op took and whether it failed.
func (m *Metrics) ObserveOperation(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	m.latency.Record(ctx, ms, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("error", err != nil),
	))
}
