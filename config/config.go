// Package config handles parsing and validation of the pipeline
// configuration. Values come from an optional YAML file merged with
// S3STAGE_-prefixed environment variables; the lambda entrypoint uses the
// environment only.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/datapress/s3stage/record"
	"github.com/datapress/s3stage/transform"
)

// envPrefix is stripped from environment variables before they are merged,
// so S3STAGE_DESTINATION_BUCKET maps to destination_bucket.
const envPrefix = "S3STAGE_"

// Config holds all configuration for the transform pipeline.
type Config struct {
	DestinationBucket string        `koanf:"destination_bucket"` // Bucket transformed objects are written to
	KeyPrefix         string        `koanf:"key_prefix"`         // Prefix deriving outgoing keys from source keys
	Transform         string        `koanf:"transform"`          // Registered transformer name
	Region            string        `koanf:"region"`             // AWS region for the clients
	MaxWorkers        int           `koanf:"max_workers"`        // Maximum number of concurrent stage invocations
	EventLogS3URI     string        `koanf:"event_log_s3_uri"`   // S3 URI of a JSON-lines event log to replay
	ReportS3URI       string        `koanf:"report_s3_uri"`      // S3 URI for the final report
	MetricsPort       int           `koanf:"metrics_port"`       // Prometheus port for long runs (0 disables)
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`   // Graceful shutdown timeout
	LogLevel          string        `koanf:"log_level"`
	LogJSON           bool          `koanf:"log_json"`

	// Internal fields parsed from EventLogS3URI
	eventLogBucket string
	eventLogKey    string
}

// EventLogBucket returns the bucket parsed from EventLogS3URI.
func (c *Config) EventLogBucket() string { return c.eventLogBucket }

// EventLogKey returns the key parsed from EventLogS3URI.
func (c *Config) EventLogKey() string { return c.eventLogKey }

// Load merges an optional YAML file with environment variables and applies
// defaults. A missing file is not an error, so the lambda can load from the
// environment alone.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values with the operational defaults.
func (c *Config) ApplyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = record.DefaultKeyPrefix
	}
	if c.Transform == "" {
		c.Transform = transform.DefaultName
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 4
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate ensures all required fields are present and have valid values.
func (c *Config) Validate() error {
	if c.DestinationBucket == "" {
		return fmt.Errorf("destination bucket is required")
	}

	if !transform.Registered(c.Transform) {
		return fmt.Errorf("unknown transform: %s", c.Transform)
	}

	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}

	if c.EventLogS3URI != "" {
		bucket, key, err := parseS3URI(c.EventLogS3URI)
		if err != nil {
			return fmt.Errorf("invalid event log URI: %w", err)
		}
		c.eventLogBucket = bucket
		c.eventLogKey = key
	}

	if c.ReportS3URI != "" {
		if _, _, err := parseS3URI(c.ReportS3URI); err != nil {
			return fmt.Errorf("invalid report URI: %w", err)
		}
	}

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 0 and 65535")
	}

	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second")
	}

	return nil
}

// parseS3URI splits an s3://bucket/key URI into bucket and key.
func parseS3URI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("S3 URI must use s3 scheme: %s", uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("S3 URI is missing a bucket: %s", uri)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("S3 URI is missing a key: %s", uri)
	}
	return u.Host, key, nil
}
