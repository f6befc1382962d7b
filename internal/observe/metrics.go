// Package observe provides application-wide observability primitives for
// Kisan Live: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Kisan Live metrics.
const meterName = "github.com/MrWong99/kisanlive"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long the remote session takes to connect.
	// Use with attribute.String("provider", ...).
	ConnectDuration metric.Float64Histogram

	// SessionDuration tracks the wall-clock length of conversation sessions.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// SessionsStarted counts Start calls that reached the connecting state.
	SessionsStarted metric.Int64Counter

	// SessionEnds counts ended sessions. Use with attribute:
	//   attribute.String("reason", ...)
	SessionEnds metric.Int64Counter

	// FramesSent counts microphone frames transmitted to the provider.
	FramesSent metric.Int64Counter

	// FramesDropped counts microphone frames dropped before transmission.
	// Use with attribute.String("cause", "not_open"|"backpressure"|"send_error").
	FramesDropped metric.Int64Counter

	// ChunksReceived counts inbound audio chunks scheduled for playback.
	ChunksReceived metric.Int64Counter

	// ChunksDropped counts inbound audio chunks that could not be played.
	ChunksDropped metric.Int64Counter

	// TranscriptLines counts finalised transcript lines. Use with attribute:
	//   attribute.String("role", ...)
	TranscriptLines metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// connection setup latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for
// conversation lengths.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("kisanlive.connect.duration",
		metric.WithDescription("Latency of establishing the remote live session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("kisanlive.session.duration",
		metric.WithDescription("Length of conversation sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SessionsStarted, err = m.Int64Counter("kisanlive.sessions.started",
		metric.WithDescription("Total conversation sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionEnds, err = m.Int64Counter("kisanlive.session.ends",
		metric.WithDescription("Total conversation sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("kisanlive.frames.sent",
		metric.WithDescription("Total microphone frames sent to the provider."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("kisanlive.frames.dropped",
		metric.WithDescription("Total microphone frames dropped by cause."),
	); err != nil {
		return nil, err
	}
	if met.ChunksReceived, err = m.Int64Counter("kisanlive.chunks.received",
		metric.WithDescription("Total inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("kisanlive.chunks.dropped",
		metric.WithDescription("Total inbound audio chunks dropped."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptLines, err = m.Int64Counter("kisanlive.transcript.lines",
		metric.WithDescription("Total finalised transcript lines by role."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("kisanlive.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kisanlive.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSessionStart increments the started counter and the active gauge.
func (m *Metrics) RecordSessionStart(ctx context.Context) {
	m.SessionsStarted.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
}

// RecordSessionEnd records the end of a session that began at started.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string, started time.Time) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionEnds.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.SessionDuration.Record(ctx, time.Since(started).Seconds())
}

// RecordConnect records the latency of a connect attempt.
func (m *Metrics) RecordConnect(ctx context.Context, provider, status string, d time.Duration) {
	m.ConnectDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordFrameDropped increments the dropped frame counter for cause.
func (m *Metrics) RecordFrameDropped(ctx context.Context, cause string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordTranscriptLine increments the transcript line counter for role.
func (m *Metrics) RecordTranscriptLine(ctx context.Context, role string) {
	m.TranscriptLines.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
