// Package api exposes the activity engine and production reports over
// HTTP with a JSON envelope.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopclock/internal/activity"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB     *gorm.DB
	Engine *activity.Engine
	Port   int
	Logger *slog.Logger
	// StartRatePerMinute limits start/finish calls per client IP; 0 disables.
	StartRatePerMinute int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Now overrides the report clock in tests.
	Now func() time.Time
}

func (o *StartOpts) validate() error {
	if o.DB == nil {
		return fmt.Errorf("api: db is required")
	}
	if o.Engine == nil {
		return fmt.Errorf("api: engine is required")
	}
	if o.Port <= 0 {
		o.Port = 8080
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(opts.Logger))

	h := &handlers{db: opts.DB, engine: opts.Engine, log: opts.Logger, now: opts.Now}
	limit := newRateLimiter(opts.StartRatePerMinute, 10*time.Minute)
	registerRoutes(router, h, limit, opts.Metrics)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if err := opts.validate(); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			opts.Logger.Error("api shutdown", "error", err)
		}
	}()

	opts.Logger.Info("api listening", "port", opts.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
