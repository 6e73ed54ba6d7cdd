// Package observe provides observability primitives for Aria: OpenTelemetry
// metrics with a Prometheus exporter bridge and structured-logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter so they can be scraped via the standard
// /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Aria metrics.
const meterName = "github.com/lumenwell/aria"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ConnectDuration tracks the full connect sequence, credential
	// acquisition through the applied remote description.
	ConnectDuration metric.Float64Histogram

	// TurnDuration tracks one conversational turn, commit to response-done.
	TurnDuration metric.Float64Histogram

	// TurnsCompleted counts authoritative turn completions. Use with
	// attribute: attribute.String("outcome", "completed"|"failed"|"cancelled")
	TurnsCompleted metric.Int64Counter

	// EventsDropped counts side-channel messages discarded before dispatch.
	// Use with attribute: attribute.String("reason", ...)
	EventsDropped metric.Int64Counter

	// PersistFailures counts conversation-store writes that were dropped.
	PersistFailures metric.Int64Counter

	// Reconnects counts automatic reconnect attempts.
	Reconnects metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Connects
// land under a second; turns take seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectDuration, err = m.Float64Histogram("aria.connect.duration",
		metric.WithDescription("Latency of the session connect sequence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("aria.turn.duration",
		metric.WithDescription("Duration of one conversational turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TurnsCompleted, err = m.Int64Counter("aria.turns.completed",
		metric.WithDescription("Total turn completions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("aria.events.dropped",
		metric.WithDescription("Total side-channel messages dropped before dispatch."),
	); err != nil {
		return nil, err
	}
	if met.PersistFailures, err = m.Int64Counter("aria.persist.failures",
		metric.WithDescription("Total conversation-store writes dropped."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("aria.session.reconnects",
		metric.WithDescription("Total automatic reconnect attempts."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("aria.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("aria.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordTurn records one turn completion with its outcome and duration in
// seconds.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.TurnsCompleted.Add(ctx, 1, attrs)
	if seconds > 0 {
		m.TurnDuration.Record(ctx, seconds, attrs)
	}
}

// RecordDroppedEvent records one discarded side-channel message.
func (m *Metrics) RecordDroppedEvent(ctx context.Context, reason string) {
	m.EventsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
