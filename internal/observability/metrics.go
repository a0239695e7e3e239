// Package observability wires OpenTelemetry metrics to a Prometheus scrape
// endpoint and records activity lifecycle instruments.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope for shopclock instruments.
const MeterName = "github.com/zulandar/shopclock"

// InitMetrics initializes the OpenTelemetry meter provider with a Prometheus
// exporter and installs it globally. It returns the /metrics handler and a
// shutdown function to call on exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("observability: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return promhttp.Handler(), provider.Shutdown, nil
}

// ActivityRecorder records lifecycle transitions as OpenTelemetry
// instruments. It satisfies activity.Recorder.
type ActivityRecorder struct {
	started  metric.Int64Counter
	pieces   metric.Int64Counter
	pauses   metric.Int64Counter
	resumes  metric.Int64Counter
	finished metric.Int64Counter
	elapsed  metric.Int64Histogram
	pieceSec metric.Int64Histogram
	tpu      metric.Float64Histogram
}

var _ activity.Recorder = (*ActivityRecorder)(nil)

// NewActivityRecorder creates the activity instruments on mp. A nil mp uses
// the global provider.
func NewActivityRecorder(mp metric.MeterProvider) (*ActivityRecorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(MeterName)
	var r ActivityRecorder
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	var err error
	r.started, err = m.Int64Counter("shopclock.activities.started",
		metric.WithDescription("Activities started."))
	add(err)
	r.pieces, err = m.Int64Counter("shopclock.pieces.registered",
		metric.WithDescription("Pieces registered."))
	add(err)
	r.pauses, err = m.Int64Counter("shopclock.activities.paused",
		metric.WithDescription("Pauses taken."))
	add(err)
	r.resumes, err = m.Int64Counter("shopclock.activities.resumed",
		metric.WithDescription("Pauses ended."))
	add(err)
	r.finished, err = m.Int64Counter("shopclock.activities.finished",
		metric.WithDescription("Activities closed, by final status."))
	add(err)
	r.elapsed, err = m.Int64Histogram("shopclock.activity.elapsed",
		metric.WithDescription("Net elapsed time of closed activities."), metric.WithUnit("s"))
	add(err)
	r.pieceSec, err = m.Int64Histogram("shopclock.piece.duration",
		metric.WithDescription("Individual piece durations."), metric.WithUnit("s"))
	add(err)
	r.tpu, err = m.Float64Histogram("shopclock.activity.tpu",
		metric.WithDescription("Time per unit of closed activities."), metric.WithUnit("s"))
	add(err)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observability: create activity instruments: %w", err)
	}
	return &r, nil
}

func processAttr(a *models.Activity) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("process_id", a.ProcessID))
}

// Started counts a new activity.
func (r *ActivityRecorder) Started(ctx context.Context, a *models.Activity) {
	r.started.Add(ctx, 1, processAttr(a))
}

// PieceRegistered counts a piece and records its duration when positive.
func (r *ActivityRecorder) PieceRegistered(ctx context.Context, a *models.Activity, individualSec int64) {
	r.pieces.Add(ctx, 1, processAttr(a))
	if individualSec > 0 {
		r.pieceSec.Record(ctx, individualSec, processAttr(a))
	}
}

// Paused counts a pause.
func (r *ActivityRecorder) Paused(ctx context.Context, a *models.Activity) {
	r.pauses.Add(ctx, 1, processAttr(a))
}

// Resumed counts a resume.
func (r *ActivityRecorder) Resumed(ctx context.Context, a *models.Activity) {
	r.resumes.Add(ctx, 1, processAttr(a))
}

// Finished counts a closed activity by status and records its elapsed time
// and time per unit.
func (r *ActivityRecorder) Finished(ctx context.Context, a *models.Activity, tpu *activity.TPU) {
	r.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("process_id", a.ProcessID),
		attribute.String("status", a.Status),
	))
	if a.TotalElapsedSec != nil && *a.TotalElapsedSec >= 0 {
		r.elapsed.Record(ctx, *a.TotalElapsedSec, processAttr(a))
	}
	if tpu != nil {
		r.tpu.Record(ctx, tpu.SecondsPerUnit, metric.WithAttributes(
			attribute.String("process_id", a.ProcessID),
			attribute.String("mode", tpu.Mode),
		))
	}
}
