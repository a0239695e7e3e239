package main

import (
	"fmt"
	"time"

	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/logger"
	"gorm.io/gorm"
)

// connectFromConfig loads config and returns a GORM DB connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// engineFromConfig builds a quiet engine for one-shot CLI commands.
func engineFromConfig(configPath string) (*activity.Engine, *gorm.DB, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	eng := activity.New(gormDB, activity.Options{
		Limits: activity.LimitsFromConfig(cfg.Activity),
		Logger: logger.Discard(),
	})
	return eng, gormDB, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatDuration renders seconds as h:mm:ss.
func formatDuration(sec int64) string {
	sign := ""
	if sec < 0 {
		sign, sec = "-", -sec
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, sec/3600, sec%3600/60, sec%60)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
