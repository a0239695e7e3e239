// Package config provides YAML-based configuration loading for shopclock.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default activity limits.
const (
	DefaultAnomalyThreshold = 24 * time.Hour
	DefaultRealizedCapRatio = 1.5
	DefaultStartRatePerMin  = 10
)

// Config is the top-level shopclock configuration, loaded from shopclock.yaml.
type Config struct {
	Plant     string          `yaml:"plant"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Activity  ActivityConfig  `yaml:"activity"`
	Log       LogConfig       `yaml:"log"`
	Notify    NotifyConfig    `yaml:"notify"`
	Digest    DigestConfig    `yaml:"digest"`
	Processes []ProcessConfig `yaml:"processes"`
	Machines  []MachineConfig `yaml:"machines"`
}

// DatabaseConfig holds connection settings. Driver is "mysql" or "sqlite".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite only
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// StartRatePerMinute limits start/finish calls per client; 0 disables.
	StartRatePerMinute int `yaml:"start_rate_per_minute"`
}

// ActivityConfig holds the lifecycle engine limits.
type ActivityConfig struct {
	AnomalyThreshold        time.Duration `yaml:"anomaly_threshold"`
	RealizedCapRatio        float64       `yaml:"realized_cap_ratio"`
	RejectNegativePieceTime bool          `yaml:"reject_negative_piece_time"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NotifyConfig holds chat platform credentials. Empty tokens disable a platform.
type NotifyConfig struct {
	Slack   ChannelConfig `yaml:"slack"`
	Discord ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a bot token plus the channel to post into.
type ChannelConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DigestConfig schedules the daily production digest.
type DigestConfig struct {
	Schedule string `yaml:"schedule"` // 5-field cron expression; empty disables
}

// ProcessConfig seeds a production process.
type ProcessConfig struct {
	Name   string `yaml:"name"`
	Sector string `yaml:"sector"`
}

// MachineConfig seeds a machine (e.g. an embroidery machine with heads).
type MachineConfig struct {
	ID    uint   `yaml:"id"`
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Heads int    `yaml:"heads"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" && c.Plant != "" {
			c.Database.Name = "shopclock_" + c.Plant
		}
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "shopclock.db"
		}
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.StartRatePerMinute == 0 {
		c.HTTP.StartRatePerMinute = DefaultStartRatePerMin
	}
	if c.Activity.AnomalyThreshold == 0 {
		c.Activity.AnomalyThreshold = DefaultAnomalyThreshold
	}
	if c.Activity.RealizedCapRatio == 0 {
		c.Activity.RealizedCapRatio = DefaultRealizedCapRatio
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	for i := range c.Machines {
		if c.Machines[i].Heads == 0 {
			c.Machines[i].Heads = 1
		}
		if c.Machines[i].Kind == "" {
			c.Machines[i].Kind = "embroidery"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Plant == "" {
		errs = append(errs, "plant is required")
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (mysql, sqlite)", c.Database.Driver))
	}
	if c.HTTP.StartRatePerMinute < 0 {
		errs = append(errs, "http.start_rate_per_minute must be >= 0")
	}
	if c.Activity.AnomalyThreshold < 0 {
		errs = append(errs, "activity.anomaly_threshold must be positive")
	}
	if c.Activity.RealizedCapRatio < 1 {
		errs = append(errs, "activity.realized_cap_ratio must be >= 1")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not valid", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not valid", c.Log.Format))
	}
	if (c.Notify.Slack.Token == "") != (c.Notify.Slack.Channel == "") {
		errs = append(errs, "notify.slack requires both token and channel")
	}
	if (c.Notify.Discord.Token == "") != (c.Notify.Discord.Channel == "") {
		errs = append(errs, "notify.discord requires both token and channel")
	}
	seen := make(map[string]bool)
	for i, p := range c.Processes {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("processes[%d].name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Sprintf("processes[%d].name %q is duplicated", i, p.Name))
		}
		seen[p.Name] = true
	}
	for i, m := range c.Machines {
		if m.ID == 0 {
			errs = append(errs, fmt.Sprintf("machines[%d].id is required", i))
		}
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("machines[%d].name is required", i))
		}
		if m.Heads < 0 {
			errs = append(errs, fmt.Sprintf("machines[%d].heads must be >= 0", i))
		}
		switch m.Kind {
		case "embroidery", "dtf", "press":
		default:
			errs = append(errs, fmt.Sprintf("machines[%d].kind %q is not valid (embroidery, dtf, press)", i, m.Kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NotifyEnabled reports whether at least one chat platform is configured.
func (c *Config) NotifyEnabled() bool {
	return c.Notify.Slack.Token != "" || c.Notify.Discord.Token != ""
}
