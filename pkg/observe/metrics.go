// Package observe provides the relay's OpenTelemetry metric instruments and
// the Prometheus exporter bridge that serves them on /metrics.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics dependency without branching at every call site.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all relay metrics.
const meterName = "github.com/lokutor-ai/lokutor-relay"

// Metrics holds all metric instruments for the relay.
type Metrics struct {
	// CaptureFrames counts frames forwarded from the microphone to the session.
	CaptureFrames metric.Int64Counter

	// InputLevel records the RMS level of forwarded frames.
	InputLevel metric.Float64Histogram

	// SessionInputBytes counts PCM16 bytes appended to the session input buffer.
	SessionInputBytes metric.Int64Counter

	// SessionEvents counts realtime events by source ("client"/"server").
	SessionEvents metric.Int64Counter

	// SessionErrors counts session error events and failed session calls by kind.
	SessionErrors metric.Int64Counter

	// MirrorDeltas counts response audio deltas emitted on the broadcast channel.
	MirrorDeltas metric.Int64Counter

	// MirrorBytes counts audio bytes emitted on the broadcast channel.
	MirrorBytes metric.Int64Counter

	// MirrorErrors counts failed broadcast emissions.
	MirrorErrors metric.Int64Counter

	// Transcripts counts finalized response transcripts.
	Transcripts metric.Int64Counter
}

var levelBuckets = []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1}

// NewMetrics creates all instruments on the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureFrames, err = m.Int64Counter("relay.capture.frames",
		metric.WithDescription("Frames forwarded from the microphone to the realtime session."),
	); err != nil {
		return nil, err
	}
	if met.InputLevel, err = m.Float64Histogram("relay.capture.input_level",
		metric.WithDescription("RMS level of forwarded microphone frames."),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionInputBytes, err = m.Int64Counter("relay.session.input_bytes",
		metric.WithDescription("PCM16 bytes appended to the session input buffer."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.SessionEvents, err = m.Int64Counter("relay.session.events",
		metric.WithDescription("Realtime events by source."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("relay.session.errors",
		metric.WithDescription("Realtime session errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.MirrorDeltas, err = m.Int64Counter("relay.mirror.deltas",
		metric.WithDescription("Response audio deltas emitted on the broadcast channel."),
	); err != nil {
		return nil, err
	}
	if met.MirrorBytes, err = m.Int64Counter("relay.mirror.bytes",
		metric.WithDescription("Response audio bytes emitted on the broadcast channel."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.MirrorErrors, err = m.Int64Counter("relay.mirror.errors",
		metric.WithDescription("Failed broadcast emissions."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("relay.transcripts",
		metric.WithDescription("Finalized response transcripts."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame records one frame forwarded to the session.
func (m *Metrics) RecordFrame(ctx context.Context, bytes int, level float64) {
	if m == nil {
		return
	}
	m.CaptureFrames.Add(ctx, 1)
	m.SessionInputBytes.Add(ctx, int64(bytes))
	m.InputLevel.Record(ctx, level)
}

// RecordEvent records one realtime event.
func (m *Metrics) RecordEvent(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.SessionEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordSessionError records a session error of the given kind.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordMirror records one broadcast emission on channel.
func (m *Metrics) RecordMirror(ctx context.Context, channel string, bytes int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("channel", channel))
	if err != nil {
		m.MirrorErrors.Add(ctx, 1, attrs)
		return
	}
	m.MirrorDeltas.Add(ctx, 1, attrs)
	m.MirrorBytes.Add(ctx, int64(bytes), attrs)
}

// RecordTranscript records one finalized transcript.
func (m *Metrics) RecordTranscript(ctx context.Context, language string) {
	if m == nil {
		return
	}
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}
