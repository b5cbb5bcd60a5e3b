// Package config provides unified configuration loading for K-OCR.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the K-OCR services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Engines       EnginesConfig       `yaml:"engines"`
	Correction    CorrectionConfig    `yaml:"correction"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
}

// StorageConfig holds temp store settings.
type StorageConfig struct {
	Driver        string        `yaml:"driver"` // memory or redis
	BlobTTL       time.Duration `yaml:"blob_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// JobsConfig holds job record persistence settings.
type JobsConfig struct {
	Driver string        `yaml:"driver"` // memory or sqlite
	TTL    time.Duration `yaml:"ttl"`
	SQLite SQLiteConfig  `yaml:"sqlite"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PipelineConfig holds coordinator settings.
type PipelineConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	StageTimeout      time.Duration `yaml:"stage_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
}

// EnginesConfig holds OCR engine settings.
type EnginesConfig struct {
	TesseractLanguages []string     `yaml:"tesseract_languages"`
	Paddle             RemoteEngine `yaml:"paddle"`
}

// RemoteEngine holds settings for an HTTP-served engine.
type RemoteEngine struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CorrectionConfig holds the Korean correction service settings.
type CorrectionConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8088,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			MaxUploadBytes:   50 << 20,
		},
		Storage: StorageConfig{
			Driver:        "memory",
			BlobTTL:       24 * time.Hour,
			SweepInterval: 10 * time.Minute,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "kocr:",
			},
		},
		Jobs: JobsConfig{
			Driver: "memory",
			TTL:    24 * time.Hour,
			SQLite: SQLiteConfig{
				Path:         "/tmp/kocr-jobs.db",
				MaxOpenConns: 1,
			},
		},
		Pipeline: PipelineConfig{
			MaxConcurrentJobs: 2,
			StageTimeout:      2 * time.Minute,
			MaxRetries:        2,
			RetryBackoff:      time.Second,
		},
		Engines: EnginesConfig{
			TesseractLanguages: []string{"kor", "eng"},
			Paddle: RemoteEngine{
				BaseURL: "http://localhost:8866",
				Timeout: 90 * time.Second,
			},
		},
		Correction: CorrectionConfig{
			BaseURL: "http://localhost:8867",
			Timeout: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "k-ocr",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Driver != "memory" && c.Storage.Driver != "redis" {
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}
	if c.Jobs.Driver != "memory" && c.Jobs.Driver != "sqlite" {
		return fmt.Errorf("invalid jobs driver: %s", c.Jobs.Driver)
	}
	if c.Storage.BlobTTL <= 0 {
		return fmt.Errorf("blob_ttl must be positive")
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	return nil
}

// applyEnvOverrides applies KOCR_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KOCR_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KOCR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KOCR_REDIS_URL"); v != "" {
		cfg.Storage.Driver = "redis"
		cfg.Storage.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("KOCR_JOBS_DRIVER"); v != "" {
		cfg.Jobs.Driver = v
	}
	if v := os.Getenv("KOCR_SQLITE_PATH"); v != "" {
		cfg.Jobs.Driver = "sqlite"
		cfg.Jobs.SQLite.Path = v
	}
	if v := os.Getenv("KOCR_PADDLE_URL"); v != "" {
		cfg.Engines.Paddle.BaseURL = v
	}
	if v := os.Getenv("KOCR_CORRECTOR_URL"); v != "" {
		cfg.Correction.BaseURL = v
	}
	if v := os.Getenv("KOCR_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("KOCR_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
