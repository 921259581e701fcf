// Package observe provides application-wide observability primitives for
// Well-Bot: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Well-Bot metrics.
const meterName = "github.com/wellbot-ai/wellbot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per session stage ---

	// CaptureDuration tracks the wall-clock length of utterance captures.
	CaptureDuration metric.Float64Histogram

	// PlaybackDuration tracks the wall-clock length of audio playback calls.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-word detection events.
	WakeDetections metric.Int64Counter

	// Nudges counts silence-prompt nudges played during capture.
	Nudges metric.Int64Counter

	// Terminations counts capture/playback terminal signals. Use with attribute:
	//   attribute.String("signal", ...)
	Terminations metric.Int64Counter

	// ActivityRuns counts activity executions. Use with attributes:
	//   attribute.String("activity", ...), attribute.String("status", ...)
	ActivityRuns metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of in-flight utterance captures
	// (0 or 1 — the device lock forbids more).
	ActiveCaptures metric.Int64UpDownCounter

	// ActiveActivities tracks the number of running activities.
	ActiveActivities metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational captures: sub-second playback up to multi-minute meditations.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("wellbot.capture.duration",
		metric.WithDescription("Wall-clock length of utterance captures."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("wellbot.playback.duration",
		metric.WithDescription("Wall-clock length of audio playback calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("wellbot.wake.detections",
		metric.WithDescription("Total wake-word detection events."),
	); err != nil {
		return nil, err
	}
	if met.Nudges, err = m.Int64Counter("wellbot.capture.nudges",
		metric.WithDescription("Total silence-prompt nudges played during capture."),
	); err != nil {
		return nil, err
	}
	if met.Terminations, err = m.Int64Counter("wellbot.capture.terminations",
		metric.WithDescription("Total terminal capture/playback signals by signal kind."),
	); err != nil {
		return nil, err
	}
	if met.ActivityRuns, err = m.Int64Counter("wellbot.activity.runs",
		metric.WithDescription("Total activity executions by activity and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("wellbot.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("wellbot.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCaptures, err = m.Int64UpDownCounter("wellbot.active_captures",
		metric.WithDescription("Number of in-flight utterance captures."),
	); err != nil {
		return nil, err
	}
	if met.ActiveActivities, err = m.Int64UpDownCounter("wellbot.active_activities",
		metric.WithDescription("Number of running activities."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wellbot.http.request.duration",
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

// RecordCapture records one finished utterance capture: its duration
// histogram sample and a termination counter increment for the signal.
func (m *Metrics) RecordCapture(ctx context.Context, d time.Duration, signal string) {
	m.CaptureDuration.Record(ctx, d.Seconds())
	m.Terminations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("signal", signal)),
	)
}

// RecordPlayback records one finished playback call.
func (m *Metrics) RecordPlayback(ctx context.Context, d time.Duration, signal string) {
	m.PlaybackDuration.Record(ctx, d.Seconds())
	m.Terminations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("signal", signal)),
	)
}

// RecordNudge records one silence-prompt nudge.
func (m *Metrics) RecordNudge(ctx context.Context) {
	m.Nudges.Add(ctx, 1)
}

// RecordWakeDetection records one wake-word detection event.
func (m *Metrics) RecordWakeDetection(ctx context.Context) {
	m.WakeDetections.Add(ctx, 1)
}

// RecordActivityRun records one activity execution with its outcome status.
func (m *Metrics) RecordActivityRun(ctx context.Context, activity, status string) {
	m.ActivityRuns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("activity", activity),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
