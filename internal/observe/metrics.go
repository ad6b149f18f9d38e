// Package observe provides the observability primitives for SlideSense:
// OpenTelemetry metrics, tracing helpers, structured logging, and the HTTP
// middleware for the admin endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through a Prometheus bridge set up by [InitProvider], so the standard
// /metrics endpoint keeps working. Tests should use [NewMetrics] with a
// custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all SlideSense metrics.
const meterName = "github.com/wicaksana/slidesense"

// Metrics holds the OpenTelemetry instruments for the recognition engine.
// All fields are safe for concurrent use.
type Metrics struct {
	// MatchDuration tracks end-to-end match latency per attempt.
	MatchDuration metric.Float64Histogram

	// MatchAttempts counts match attempts. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("source", ...)
	MatchAttempts metric.Int64Counter

	// AccentRewrites counts matches short-circuited by a stored accent
	// correction.
	AccentRewrites metric.Int64Counter

	// Corrections counts user corrections fed back into accent learning.
	Corrections metric.Int64Counter

	// ActiveSessions tracks the number of live user sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks admin endpoint latency. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram boundaries (in seconds). Matching runs in
// microseconds to low milliseconds, so the buckets skew far lower than
// typical request-latency defaults.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MatchDuration, err = m.Float64Histogram("slidesense.match.duration",
		metric.WithDescription("End-to-end latency of one match attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchAttempts, err = m.Int64Counter("slidesense.match.attempts",
		metric.WithDescription("Total match attempts by outcome and source."),
	); err != nil {
		return nil, err
	}
	if met.AccentRewrites, err = m.Int64Counter("slidesense.accent.rewrites",
		metric.WithDescription("Matches resolved by a stored accent correction."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("slidesense.corrections",
		metric.WithDescription("User corrections applied to accent profiles."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("slidesense.active_sessions",
		metric.WithDescription("Number of live user sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("slidesense.http.request.duration",
		metric.WithDescription("Admin endpoint latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordMatch records one match attempt: its latency and its outcome/source
// counter increment. A rewrite source additionally bumps the accent rewrite
// counter.
func (m *Metrics) RecordMatch(ctx context.Context, outcome, source string, elapsed time.Duration) {
	m.MatchDuration.Record(ctx, elapsed.Seconds())
	m.MatchAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		),
	)
	if source == "accent-rewrite" {
		m.AccentRewrites.Add(ctx, 1)
	}
}

// RecordCorrection records one applied user correction.
func (m *Metrics) RecordCorrection(ctx context.Context, commandID string) {
	m.Corrections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("command_id", commandID)),
	)
}
