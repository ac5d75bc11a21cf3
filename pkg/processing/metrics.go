package processing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rehud/rehud-delta/log"
)

type metrics struct {
	frames        metric.Int64Counter
	frameDuration metric.Float64Histogram
	activeDrivers metric.Int64Gauge
	laps          metric.Int64Counter
}

func newMetrics(l *log.Logger) *metrics {
	meter := otel.GetMeterProvider().Meter("rdelta.processing")
	ret := &metrics{}
	var err error
	logErr := func(name string, err error) {
		if err != nil {
			l.Error("failed to register metric", log.String("metric", name), log.ErrorField(err))
		}
	}
	ret.frames, err = meter.Int64Counter("rdelta.frames",
		metric.WithDescription("Number of processed frames"),
		metric.WithUnit("{count}"))
	logErr("rdelta.frames", err)
	ret.frameDuration, err = meter.Float64Histogram("rdelta.frame.duration",
		metric.WithDescription("Time spent processing a frame"),
		metric.WithUnit("ms"))
	logErr("rdelta.frame.duration", err)
	ret.activeDrivers, err = meter.Int64Gauge("rdelta.drivers.active",
		metric.WithDescription("Number of active drivers"),
		metric.WithUnit("{count}"))
	logErr("rdelta.drivers.active", err)
	ret.laps, err = meter.Int64Counter("rdelta.laps",
		metric.WithDescription("Number of completed laps"),
		metric.WithUnit("{count}"))
	logErr("rdelta.laps", err)
	return ret
}

func (m *metrics) frameProcessed(ctx context.Context, d time.Duration, active int) {
	if m.frames != nil {
		m.frames.Add(ctx, 1)
	}
	if m.frameDuration != nil {
		m.frameDuration.Record(ctx, float64(d.Microseconds())/1000.0)
	}
	if m.activeDrivers != nil {
		m.activeDrivers.Record(ctx, int64(active))
	}
}

func (m *metrics) lapCompleted(ctx context.Context, main bool) {
	if m.laps != nil {
		m.laps.Add(ctx, 1, metric.WithAttributes(attribute.Bool("main", main)))
	}
}
