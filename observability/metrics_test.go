package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.Accepted(ctx)
	m.Accepted(ctx)
	m.Rejected(ctx, "missing_device_id")
	m.Published(ctx)
	m.ObserveOperation(ctx, "submit_record", time.Now().Add(-3*time.Millisecond), nil)
	m.ObserveOperation(ctx, "submit_record", time.Now(), errors.New("boom"))

	got := collect(t, reader)

	accepted, ok := got["speedmonitor.ingest.accepted"].Data.(metricdata.Sum[int64])
	if !ok || len(accepted.DataPoints) != 1 || accepted.DataPoints[0].Value != 2 {
		t.Errorf("accepted = %+v, want one point of 2", got["speedmonitor.ingest.accepted"].Data)
	}

	rejected, ok := got["speedmonitor.ingest.rejected"].Data.(metricdata.Sum[int64])
	if !ok || len(rejected.DataPoints) != 1 {
		t.Fatalf("rejected = %+v", got["speedmonitor.ingest.rejected"].Data)
	}
	if code, _ := rejected.DataPoints[0].Attributes.Value(attribute.Key("code")); code.AsString() != "missing_device_id" {
		t.Errorf("rejected code attribute = %q", code.AsString())
	}

	hist, ok := got["speedmonitor.operation.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration = %+v", got["speedmonitor.operation.duration"].Data)
	}
	if len(hist.DataPoints) != 2 {
		t.Errorf("expected success and error series, got %d", len(hist.DataPoints))
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	ctx := context.Background()
	m.Accepted(ctx)
	m.Rejected(ctx, "x")
	m.Published(ctx)
	m.ObserveOperation(ctx, "x", time.Now(), nil)
}

func TestNewMetricsWithoutProvider(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(nil)
	if err != nil || m == nil {
		t.Fatalf("NewMetrics(nil) = %v, %v", m, err)
	}
	m.Accepted(context.Background())
}

func TestNewProviders(t *testing.T) {
	t.Parallel()

	p, err := NewProviders(context.Background(), "  ", "speedmonitor", "test", false)
	if err != nil {
		t.Fatalf("empty endpoint: %v", err)
	}
	if p.MeterProvider == nil {
		t.Fatal("expected a meter provider")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	if _, err := NewProviders(context.Background(), "http://", "speedmonitor", "test", false); err == nil {
		t.Error("expected error for endpoint without host")
	}
}
