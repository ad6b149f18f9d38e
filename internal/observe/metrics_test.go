package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordMatch(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMatch(ctx, "accepted", "fuzzy", 800*time.Microsecond)
	m.RecordMatch(ctx, "rejected", "fuzzy", 700*time.Microsecond)

	rm := collect(t, reader)

	hist := findMetric(rm, "slidesense.match.duration")
	if hist == nil {
		t.Fatal("match duration histogram not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("histogram count = %d, want 2", count)
	}

	attempts := findMetric(rm, "slidesense.match.attempts")
	if attempts == nil {
		t.Fatal("match attempts counter not found")
	}
	sum, ok := attempts.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", attempts.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("attempts total = %d, want 2", total)
	}
}

func TestRecordMatch_AccentRewriteBumpsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMatch(ctx, "accepted", "accent-rewrite", time.Millisecond)
	m.RecordMatch(ctx, "accepted", "fuzzy", time.Millisecond)

	rm := collect(t, reader)
	rewrites := findMetric(rm, "slidesense.accent.rewrites")
	if rewrites == nil {
		t.Fatal("accent rewrites counter not found")
	}
	sum, ok := rewrites.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", rewrites.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("rewrites total = %d, want 1", total)
	}
}

func TestRecordCorrection_CarriesCommandAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCorrection(context.Background(), "next_slide")

	rm := collect(t, reader)
	corr := findMetric(rm, "slidesense.corrections")
	if corr == nil {
		t.Fatal("corrections counter not found")
	}
	sum, ok := corr.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", corr.Data)
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("datapoints = %d, want 1", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if v, ok := dp.Attributes.Value(attribute.Key("command_id")); !ok || v.AsString() != "next_slide" {
		t.Errorf("command_id attribute = %v, want next_slide", v)
	}
}

func TestActiveSessions_UpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, "slidesense.active_sessions")
	if active == nil {
		t.Fatal("active sessions counter not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", active.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("active sessions = %d, want 1", total)
	}
}
