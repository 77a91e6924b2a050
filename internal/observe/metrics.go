// Package observe provides observability primitives for the readalong
// engine: OpenTelemetry metrics, tracing helpers, and trace-aware structured
// logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from a standard /metrics endpoint. There is deliberately no package-level
// default instance: the engine receives its [Metrics] at construction, so
// tests and embedders control the provider explicitly.
package observe

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all readalong metrics.
const meterName = "github.com/ponderpaw/readalong"

// Metrics holds all OpenTelemetry metric instruments for the engine. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ActionDuration tracks how long each action took to resolve. Use with
	// attribute.String("kind", ...).
	ActionDuration metric.Float64Histogram

	// ActionsTotal counts resolved actions. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("outcome", ...)
	ActionsTotal metric.Int64Counter

	// PagesCompleted counts pages whose action list fully resolved.
	PagesCompleted metric.Int64Counter

	// VoiceRetries counts unrecognized-retry cycles across voice actions.
	VoiceRetries metric.Int64Counter

	// ResourceErrors counts degraded resource failures (missing audio,
	// failed conversation start). Use with attribute.String("kind", ...).
	ResourceErrors metric.Int64Counter

	// ActiveSessions tracks the number of live reading sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// actionBuckets defines histogram bucket boundaries (in seconds) sized for
// narration and interaction durations.
var actionBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActionDuration, err = m.Float64Histogram("readalong.action.duration",
		metric.WithDescription("Time for an action to resolve, by kind."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(actionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActionsTotal, err = m.Int64Counter("readalong.actions.total",
		metric.WithDescription("Resolved actions by kind and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PagesCompleted, err = m.Int64Counter("readalong.pages.completed",
		metric.WithDescription("Pages whose action list fully resolved."),
	); err != nil {
		return nil, err
	}
	if met.VoiceRetries, err = m.Int64Counter("readalong.voice.retries",
		metric.WithDescription("Unrecognized-retry cycles across voice actions."),
	); err != nil {
		return nil, err
	}
	if met.ResourceErrors, err = m.Int64Counter("readalong.resource.errors",
		metric.WithDescription("Degraded resource failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("readalong.active_sessions",
		metric.WithDescription("Number of live reading sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNoopMetrics returns a Metrics instance whose instruments discard every
// record. Used when the embedder does not configure telemetry.
func NewNoopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// The noop provider cannot fail instrument creation.
		panic(err)
	}
	return met
}
