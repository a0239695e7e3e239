// Package activity implements the activity lifecycle (start, piece
// registration, pause, resume, finish) and time-per-unit derivation.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/logger"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// Clock supplies wall time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// Notifier receives operational alerts such as anomalous activities.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Recorder observes lifecycle transitions for metrics.
type Recorder interface {
	Started(ctx context.Context, a *models.Activity)
	PieceRegistered(ctx context.Context, a *models.Activity, individualSec int64)
	Paused(ctx context.Context, a *models.Activity)
	Resumed(ctx context.Context, a *models.Activity)
	Finished(ctx context.Context, a *models.Activity, tpu *TPU)
}

// Limits are the tunable business limits of the lifecycle.
type Limits struct {
	AnomalyThreshold        time.Duration
	RealizedCapRatio        float64
	RejectNegativePieceTime bool
}

// DefaultLimits returns the stock limits: 24h anomaly threshold and a 1.5x
// cap on realized quantity.
func DefaultLimits() Limits {
	return Limits{
		AnomalyThreshold: config.DefaultAnomalyThreshold,
		RealizedCapRatio: config.DefaultRealizedCapRatio,
	}
}

// LimitsFromConfig converts the activity section of the config.
func LimitsFromConfig(c config.ActivityConfig) Limits {
	l := DefaultLimits()
	if c.AnomalyThreshold > 0 {
		l.AnomalyThreshold = c.AnomalyThreshold
	}
	if c.RealizedCapRatio >= 1 {
		l.RealizedCapRatio = c.RealizedCapRatio
	}
	l.RejectNegativePieceTime = c.RejectNegativePieceTime
	return l
}

// Options configures an Engine. Zero values get defaults.
type Options struct {
	Clock    Clock
	Logger   *slog.Logger
	Limits   Limits
	Notifier Notifier
	Recorder Recorder
}

// Engine runs lifecycle operations against the store. It holds no mutable
// state; uniqueness is enforced by the store.
type Engine struct {
	db       *gorm.DB
	clock    Clock
	log      *slog.Logger
	limits   Limits
	notifier Notifier
	rec      Recorder
}

// New creates an Engine over gdb.
func New(gdb *gorm.DB, opts Options) *Engine {
	e := &Engine{
		db:       gdb,
		clock:    opts.Clock,
		log:      opts.Logger,
		limits:   opts.Limits,
		notifier: opts.Notifier,
		rec:      opts.Recorder,
	}
	if e.clock == nil {
		e.clock = ClockFunc(time.Now)
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	def := DefaultLimits()
	if e.limits.AnomalyThreshold <= 0 {
		e.limits.AnomalyThreshold = def.AnomalyThreshold
	}
	if e.limits.RealizedCapRatio < 1 {
		e.limits.RealizedCapRatio = def.RealizedCapRatio
	}
	if e.rec == nil {
		e.rec = nopRecorder{}
	}
	return e
}

// Limits returns the limits in effect.
func (e *Engine) Limits() Limits { return e.limits }

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Second)
}

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, e.log)
}

// load fetches an activity by id, mapping a missing row to NotFound.
func (e *Engine) load(ctx context.Context, id string) (*models.Activity, error) {
	var a models.Activity
	if err := e.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, lookupErr(err, MsgActivityNotFound)
	}
	return &a, nil
}

// lookupErr maps a First() failure to NotFound or a store error.
func lookupErr(err error, notFoundMsg string) error {
	if db.IsNotFound(err) {
		return newError(ErrNotFound, notFoundMsg)
	}
	return storeErr("lookup", err)
}

// notify sends an alert without failing the caller.
func (e *Engine) notify(ctx context.Context, subject, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, subject, body); err != nil {
		e.logger(ctx).Warn("notification failed", "subject", subject, "error", err)
	}
}

var (
	errStateChanged = errors.New("activity state changed concurrently")
	errStale        = errors.New("activity version changed concurrently")
)

type nopRecorder struct{}

func (nopRecorder) Started(context.Context, *models.Activity)                {}
func (nopRecorder) PieceRegistered(context.Context, *models.Activity, int64) {}
func (nopRecorder) Paused(context.Context, *models.Activity)                 {}
func (nopRecorder) Resumed(context.Context, *models.Activity)                {}
func (nopRecorder) Finished(context.Context, *models.Activity, *TPU)         {}
