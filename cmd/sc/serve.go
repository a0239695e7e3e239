package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/api"
	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/digest"
	"github.com/zulandar/shopclock/internal/logger"
	"github.com/zulandar/shopclock/internal/notify"
	"github.com/zulandar/shopclock/internal/observability"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the shopclock HTTP API with Prometheus metrics at /metrics.

When notify is configured, anomalous activities raise alerts and the digest
schedule (if any) posts a daily production summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configPath, port, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides http.port)")
	return cmd
}

func runServe(ctx context.Context, configPath string, port int, logOut io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, logOut)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(gormDB); err != nil {
			return err
		}
	}

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())
	recorder, err := observability.NewActivityRecorder(nil)
	if err != nil {
		return err
	}

	notifier, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}
	opts := activity.Options{
		Limits:   activity.LimitsFromConfig(cfg.Activity),
		Logger:   log,
		Recorder: recorder,
	}
	if notifier.Len() > 0 {
		opts.Notifier = notifier
	}
	engine := activity.New(gormDB, opts)

	if cfg.Digest.Schedule != "" {
		if notifier.Len() == 0 {
			log.Warn("digest schedule set but no notify platform configured; digest disabled")
		} else {
			sched, err := digest.New(gormDB, digest.Opts{Schedule: cfg.Digest.Schedule, Sender: notifier, Logger: log})
			if err != nil {
				return err
			}
			go sched.Run(ctx)
			log.Info("digest scheduled", "schedule", cfg.Digest.Schedule)
		}
	}

	if port == 0 {
		port = cfg.HTTP.Port
	}
	return api.Start(ctx, api.StartOpts{
		DB:                 gormDB,
		Engine:             engine,
		Port:               port,
		Logger:             log,
		StartRatePerMinute: cfg.HTTP.StartRatePerMinute,
		Metrics:            metricsHandler,
	})
}
