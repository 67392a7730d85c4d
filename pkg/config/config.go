package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration for the Vello server and CLIs.
type Config struct {
	Listen  string
	DBPath  string
	DataDir string

	LogLevel string
	LogFile  string

	Assets AssetsConfig
	Mailer MailerConfig
	Jobs   JobsConfig
}

// AssetsConfig tunes remote image fetching.
type AssetsConfig struct {
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	MaxBytes     int64
}

// MailerConfig tunes the SMTP dispatch queue.
type MailerConfig struct {
	Workers   int
	QueueSize int
	SendDelay time.Duration
}

// JobsConfig tunes batch generation.
type JobsConfig struct {
	Workers       int
	RecordDelay   time.Duration
	RetentionDays int
}

// configFile is the YAML shape. Durations are plain strings ("30s", "100ms").
type configFile struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Assets   struct {
		FetchTimeout string `yaml:"fetch_timeout"`
		CacheTTL     string `yaml:"cache_ttl"`
		MaxBytes     int64  `yaml:"max_bytes"`
	} `yaml:"assets"`
	Mailer struct {
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queue_size"`
		SendDelay string `yaml:"send_delay"`
	} `yaml:"mailer"`
	Jobs struct {
		Workers       int    `yaml:"workers"`
		RecordDelay   string `yaml:"record_delay"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"jobs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   ":8080",
		DBPath:   "data/vello.db",
		DataDir:  "data",
		LogLevel: "info",
		Assets: AssetsConfig{
			FetchTimeout: 30 * time.Second,
			CacheTTL:     10 * time.Minute,
			MaxBytes:     8 << 20,
		},
		Mailer: MailerConfig{
			Workers:   2,
			QueueSize: 256,
			SendDelay: 100 * time.Millisecond,
		},
		Jobs: JobsConfig{
			Workers:       1,
			RecordDelay:   100 * time.Millisecond,
			RetentionDays: 30,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path is not an
// error: defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if f.Listen != "" {
		cfg.Listen = f.Listen
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}

	if err := overlayDuration(&cfg.Assets.FetchTimeout, f.Assets.FetchTimeout); err != nil {
		return cfg, fmt.Errorf("assets.fetch_timeout: %w", err)
	}
	if err := overlayDuration(&cfg.Assets.CacheTTL, f.Assets.CacheTTL); err != nil {
		return cfg, fmt.Errorf("assets.cache_ttl: %w", err)
	}
	if f.Assets.MaxBytes > 0 {
		cfg.Assets.MaxBytes = f.Assets.MaxBytes
	}

	if f.Mailer.Workers > 0 {
		cfg.Mailer.Workers = f.Mailer.Workers
	}
	if f.Mailer.QueueSize > 0 {
		cfg.Mailer.QueueSize = f.Mailer.QueueSize
	}
	if err := overlayDuration(&cfg.Mailer.SendDelay, f.Mailer.SendDelay); err != nil {
		return cfg, fmt.Errorf("mailer.send_delay: %w", err)
	}

	if f.Jobs.Workers > 0 {
		cfg.Jobs.Workers = f.Jobs.Workers
	}
	if err := overlayDuration(&cfg.Jobs.RecordDelay, f.Jobs.RecordDelay); err != nil {
		return cfg, fmt.Errorf("jobs.record_delay: %w", err)
	}
	if f.Jobs.RetentionDays > 0 {
		cfg.Jobs.RetentionDays = f.Jobs.RetentionDays
	}

	return cfg, cfg.Validate()
}

func overlayDuration(dst *time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	*dst = d
	return nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Mailer.Workers < 1 || c.Mailer.Workers > 32 {
		return fmt.Errorf("mailer.workers must be 1..32, got %d", c.Mailer.Workers)
	}
	if c.Jobs.Workers < 1 || c.Jobs.Workers > 32 {
		return fmt.Errorf("jobs.workers must be 1..32, got %d", c.Jobs.Workers)
	}
	return nil
}
