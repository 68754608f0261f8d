// Package observe provides the bot's metrics: OpenTelemetry instruments
// exported through a Prometheus bridge and served on /metrics.
//
// Tests should build [Metrics] with [NewMetrics] and a meter provider backed
// by a manual reader instead of relying on the global provider.
package observe

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/sglre6355/deejay"

// Metrics holds the OpenTelemetry instruments for playback activity.
type Metrics struct {
	// RequestsProcessed counts requests taken off a guild's request queue.
	// Attributes: action, applied.
	RequestsProcessed metric.Int64Counter

	// RequestWait tracks how long requests waited before being processed.
	RequestWait metric.Float64Histogram

	// TracksStarted counts stream player starts. Attributes: kind, source.
	TracksStarted metric.Int64Counter

	// TracksEnded counts finished runs. Attributes: reason.
	TracksEnded metric.Int64Counter

	// IdleDisconnects counts automatic leaves after inactivity.
	IdleDisconnects metric.Int64Counter

	// ActiveGuilds tracks the number of running guild loops.
	ActiveGuilds metric.Int64UpDownCounter
}

// waitBuckets covers the tick interval up to a slow search.
var waitBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates the instruments on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RequestsProcessed, err = m.Int64Counter("deejay.requests.processed",
		metric.WithDescription("Playback requests processed by action and outcome."),
	); err != nil {
		return nil, err
	}
	if met.RequestWait, err = m.Float64Histogram("deejay.request.wait",
		metric.WithDescription("Time a playback request waited in the request queue."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(waitBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TracksStarted, err = m.Int64Counter("deejay.tracks.started",
		metric.WithDescription("Stream players started by kind and source."),
	); err != nil {
		return nil, err
	}
	if met.TracksEnded, err = m.Int64Counter("deejay.tracks.ended",
		metric.WithDescription("Stream player runs ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.IdleDisconnects, err = m.Int64Counter("deejay.idle.disconnects",
		metric.WithDescription("Voice channels left after inactivity."),
	); err != nil {
		return nil, err
	}
	if met.ActiveGuilds, err = m.Int64UpDownCounter("deejay.active_guilds",
		metric.WithDescription("Number of running guild playback loops."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordRequest records one processed request and how long it waited.
func (m *Metrics) RecordRequest(ctx context.Context, action string, applied bool, waited time.Duration) {
	m.RequestsProcessed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("applied", strconv.FormatBool(applied)),
		),
	)
	m.RequestWait.Record(ctx, waited.Seconds(),
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordTrackStarted records a stream player start.
func (m *Metrics) RecordTrackStarted(ctx context.Context, kind, source string) {
	m.TracksStarted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("source", source),
		),
	)
}

// RecordTrackEnded records the end of a run.
func (m *Metrics) RecordTrackEnded(ctx context.Context, reason string) {
	m.TracksEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordIdleDisconnect records an automatic leave.
func (m *Metrics) RecordIdleDisconnect(ctx context.Context) {
	m.IdleDisconnects.Add(ctx, 1)
}

// AddActiveGuilds adjusts the running guild loop gauge by delta.
func (m *Metrics) AddActiveGuilds(ctx context.Context, delta int64) {
	m.ActiveGuilds.Add(ctx, delta)
}
