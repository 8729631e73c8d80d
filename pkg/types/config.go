// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AIConfig holds settings for the extractor backend.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds the response length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retries on HTTP 429/529 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ExtractionConfig holds settings for the scheduler.
type ExtractionConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// MaxConcurrent is the worker pool size (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// TaskTimeout bounds one extractor call (default 2m).
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout" mapstructure:"task_timeout"`

	// RateLimit caps extractor calls per second across workers. Zero disables it.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`

	// Burst is the limiter burst size (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	// DocumentsDir holds document text as <document_id>.txt or .md.
	DocumentsDir string `json:"documents_dir" yaml:"documents_dir" mapstructure:"documents_dir"`

	// OutputDir receives <subject>-<scope>.yaml.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// ViewSpec describes how one data view is fingerprinted.
type ViewSpec struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// SubjectColumn filters rows for one subject (default "subject_id").
	SubjectColumn string `json:"subject_column" yaml:"subject_column" mapstructure:"subject_column"`

	// KeyColumn is counted distinctly for id_set_size (default "id").
	KeyColumn string `json:"key_column" yaml:"key_column" mapstructure:"key_column"`

	// DateColumns are coalesced per row, first non-null wins.
	DateColumns []string `json:"date_columns" yaml:"date_columns" mapstructure:"date_columns"`
}

// FingerprintConfig holds settings for the view fingerprinter.
type FingerprintConfig struct {
	// Driver is the database/sql driver name: "sqlite3" or "pgx".
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the data source name passed to the driver.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`

	// Views lists the known view layouts.
	Views []ViewSpec `json:"views" yaml:"views" mapstructure:"views"`

	// MaxParallel bounds concurrent view queries (default 4).
	MaxParallel int `json:"max_parallel" yaml:"max_parallel" mapstructure:"max_parallel"`
}

// CacheBackend selects the cache store implementation.
type CacheBackend string

const (
	CacheSQLite CacheBackend = "sqlite"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig holds settings for cache storage and validation.
type CacheConfig struct {
	Backend CacheBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	RedisAddress  string `json:"redis_address" yaml:"redis_address" mapstructure:"redis_address"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`

	// Version tags the extraction logic and schema. Entries written under a
	// different version are never reused.
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	// MaxAgeDays expires entries older than this many days regardless of
	// fingerprint. Zero or negative means no age limit.
	MaxAgeDays int `json:"max_age_days" yaml:"max_age_days" mapstructure:"max_age_days"`

	// TTL is passed to stores that support native expiry. Zero keeps entries.
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Development bool   `json:"development" yaml:"development" mapstructure:"development"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	Extraction  ExtractionConfig  `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Fingerprint FingerprintConfig `json:"fingerprint" yaml:"fingerprint" mapstructure:"fingerprint"`
	Cache       CacheConfig       `json:"cache" yaml:"cache" mapstructure:"cache"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultPipelineConfig returns the defaults used when no config file is present.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Extraction: ExtractionConfig{
			AIConfig: AIConfig{
				Model:      "claude-sonnet-4-5-20250929",
				MaxTokens:  4096,
				MaxRetries: 5,
			},
			MaxConcurrent: 4,
			TaskTimeout:   2 * time.Minute,
			Burst:         1,
			DocumentsDir:  "documents",
			OutputDir:     "output",
		},
		Fingerprint: FingerprintConfig{
			Driver:      "sqlite3",
			DSN:         "staging/clinical.db",
			MaxParallel: 4,
		},
		Cache: CacheConfig{
			Backend:    CacheSQLite,
			Path:       "cache/extraction-cache.db",
			Version:    "v1",
			MaxAgeDays: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}
