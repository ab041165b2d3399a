// Package config provides unified configuration for the Quillstream pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode represents the command mode to run.
type Mode string

const (
	ModeIngest Mode = "ingest"
	ModeReport Mode = "report"
)

// Config holds the unified configuration for a Quillstream invocation.
type Config struct {
	// Mode specifies what to run: ingest (one pipeline run) or report
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all pipeline state
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Source configuration (where event files come from)
	Source SourceConfig `json:"source" yaml:"source"`

	// Warehouse configuration (where normalized tables live)
	Warehouse WarehouseConfig `json:"warehouse" yaml:"warehouse"`

	// Checkpoint configuration
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Archive configuration (post-ingest source archival)
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Run configuration
	Run RunConfig `json:"run" yaml:"run"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SourceConfig holds event source configuration.
type SourceConfig struct {
	// Type is the source type: local, s3
	Type string `json:"type" yaml:"type"`

	// EventsDir is the local directory of event files (for local type)
	EventsDir string `json:"events_dir" yaml:"events_dir"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 source configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix limits listing to keys under this prefix
	Prefix string `json:"prefix" yaml:"prefix"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// WarehouseConfig holds warehouse configuration.
type WarehouseConfig struct {
	// Path is the SQLite database file path
	Path string `json:"path" yaml:"path"`
}

// CheckpointConfig holds checkpoint store configuration.
type CheckpointConfig struct {
	// Path is the append-only checkpoint file path
	Path string `json:"path" yaml:"path"`
}

// ArchiveConfig holds post-ingest archival configuration.
type ArchiveConfig struct {
	// Enabled controls whether ingested source files are archived
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the directory for snappy-compressed archives
	Dir string `json:"dir" yaml:"dir"`
}

// RunConfig holds per-run behavior configuration.
type RunConfig struct {
	// FailOnError makes the process exit nonzero when any file failed.
	// Ingestion is best-effort per file, so this defaults to off.
	FailOnError bool `json:"fail_on_error" yaml:"fail_on_error"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: trace, debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Pretty enables human-readable console output instead of JSON
	Pretty bool `json:"pretty" yaml:"pretty"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeIngest,
		DataDir: "./data/quillstream",
		Source: SourceConfig{
			Type:      "local",
			EventsDir: "./data/events",
		},
		Run: RunConfig{
			FailOnError: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/quillstream"
	}

	if c.Warehouse.Path == "" {
		c.Warehouse.Path = filepath.Join(c.DataDir, "analytics.db")
	}

	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = filepath.Join(c.DataDir, "ingested_files.checkpoint")
	}

	if c.Archive.Dir == "" {
		c.Archive.Dir = filepath.Join(c.DataDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeIngest, ModeReport:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be ingest or report)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Source.Type != "local" && c.Source.Type != "s3" {
		return fmt.Errorf("invalid source type: %s (must be local or s3)", c.Source.Type)
	}

	if c.Source.Type == "local" && c.Source.EventsDir == "" {
		return fmt.Errorf("source.events_dir is required when source type is local")
	}

	if c.Source.Type == "s3" && c.Source.S3.Bucket == "" {
		return fmt.Errorf("source.s3.bucket is required when source type is s3")
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration overrides from environment variables.
// Environment variables use the QUILLSTREAM_ prefix. A .env file in the
// working directory is honored when present.
func LoadFromEnv(cfg *Config) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	if v := os.Getenv("QUILLSTREAM_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("QUILLSTREAM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Source configuration
	if v := os.Getenv("QUILLSTREAM_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("QUILLSTREAM_EVENTS_DIR"); v != "" {
		cfg.Source.EventsDir = v
	}
	if v := os.Getenv("QUILLSTREAM_S3_BUCKET"); v != "" {
		cfg.Source.S3.Bucket = v
	}
	if v := os.Getenv("QUILLSTREAM_S3_PREFIX"); v != "" {
		cfg.Source.S3.Prefix = v
	}
	if v := os.Getenv("QUILLSTREAM_S3_REGION"); v != "" {
		cfg.Source.S3.Region = v
	}
	if v := os.Getenv("QUILLSTREAM_S3_ENDPOINT"); v != "" {
		cfg.Source.S3.Endpoint = v
	}
	if v := os.Getenv("QUILLSTREAM_S3_USE_PATH_STYLE"); v != "" {
		cfg.Source.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Warehouse / checkpoint configuration
	if v := os.Getenv("QUILLSTREAM_DB_PATH"); v != "" {
		cfg.Warehouse.Path = v
	}
	if v := os.Getenv("QUILLSTREAM_CHECKPOINT_PATH"); v != "" {
		cfg.Checkpoint.Path = v
	}

	// Archive configuration
	if v := os.Getenv("QUILLSTREAM_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("QUILLSTREAM_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}

	// Run configuration
	if v := os.Getenv("QUILLSTREAM_FAIL_ON_ERROR"); v != "" {
		cfg.Run.FailOnError = v == "true" || v == "1"
	}

	// Logging configuration
	if v := os.Getenv("QUILLSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUILLSTREAM_LOG_PRETTY"); v != "" {
		cfg.Logging.Pretty = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Warehouse.Path),
		filepath.Dir(c.Checkpoint.Path),
	}
	if c.Archive.Enabled {
		dirs = append(dirs, c.Archive.Dir)
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
