// Package config loads daemon configuration from an optional YAML file with
// environment variable overrides, and constructs the structured logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "pce.db"
	defaultSchedulerType = "SLURM"
	defaultModuleRoot    = "modules"
	defaultAvailableRoot = "available_modules"
	defaultRunRoot       = "users"
	defaultPollInterval  = 10 * time.Second
	defaultWorkers       = 4
	defaultQueueSize     = 64
	defaultNumTasks      = 4

	envConfigFile    = "PCE_CONFIG"
	envListenAddr    = "PCE_LISTEN_ADDR"
	envDBPath        = "PCE_DB_PATH"
	envLogLevel      = "PCE_LOG_LEVEL"
	envSchedulerType = "PCE_SCHEDULER_TYPE"
	envModuleRoot    = "PCE_MODULE_ROOT"
	envAvailableRoot = "PCE_AVAILABLE_ROOT"
	envRunRoot       = "PCE_RUN_ROOT"
	envPollInterval  = "PCE_POLL_INTERVAL"
	envWorkers       = "PCE_WORKERS"
	envNumTasks      = "PCE_NUM_TASKS"
	envNotifyEmail   = "PCE_NOTIFY_EMAIL"
)

// Config holds daemon configuration. Precedence: defaults, then the YAML
// file named by PCE_CONFIG (if any), then environment variables.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	DBPath        string        `yaml:"db_path"`
	LogLevel      string        `yaml:"log_level"`
	SchedulerType string        `yaml:"scheduler_type"`
	ModuleRoot    string        `yaml:"module_root"`
	AvailableRoot string        `yaml:"available_root"`
	RunRoot       string        `yaml:"run_root"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	NumTasks      int           `yaml:"num_tasks"`
	NotifyEmail   string        `yaml:"notify_email"`
}

// Load reads configuration from the optional YAML file and the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      "info",
		SchedulerType: defaultSchedulerType,
		ModuleRoot:    defaultModuleRoot,
		AvailableRoot: defaultAvailableRoot,
		RunRoot:       defaultRunRoot,
		PollInterval:  defaultPollInterval,
		Workers:       defaultWorkers,
		QueueSize:     defaultQueueSize,
		NumTasks:      defaultNumTasks,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envSchedulerType); v != "" {
		cfg.SchedulerType = v
	}
	if v := os.Getenv(envModuleRoot); v != "" {
		cfg.ModuleRoot = v
	}
	if v := os.Getenv(envAvailableRoot); v != "" {
		cfg.AvailableRoot = v
	}
	if v := os.Getenv(envRunRoot); v != "" {
		cfg.RunRoot = v
	}
	if v := os.Getenv(envPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", envPollInterval, err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", envWorkers, err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv(envNumTasks); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", envNumTasks, err)
		}
		cfg.NumTasks = n
	}
	if v := os.Getenv(envNotifyEmail); v != "" {
		cfg.NotifyEmail = v
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validate rejects values that would leave the daemon silently inert, such as
// a dispatcher with zero workers.
func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.NumTasks < 1 {
		return fmt.Errorf("num_tasks must be positive, got %d", c.NumTasks)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// SlogLevel maps the configured log level string to a slog level.
func (c Config) SlogLevel() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
