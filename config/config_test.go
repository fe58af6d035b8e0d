package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DestinationBucket: "dest-bucket",
		KeyPrefix:         "processed_",
		Transform:         "uppercase",
		Region:            "us-west-2",
		MaxWorkers:        4,
		ShutdownTimeout:   time.Minute,
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestMissingDestinationBucket(t *testing.T) {
	cfg := validConfig()
	cfg.DestinationBucket = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing destination bucket")
	}
}

func TestUnknownTransform(t *testing.T) {
	cfg := validConfig()
	cfg.Transform = "rot13"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown transform")
	}
}

func TestInvalidMaxWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.MaxWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
}

func TestInvalidEventLogURI(t *testing.T) {
	testCases := []struct {
		name string
		uri  string
	}{
		{"http scheme", "http://bucket/key"},
		{"https scheme", "https://bucket/key"},
		{"no scheme", "bucket/key"},
		{"file scheme", "file:///path/to/file"},
		{"missing key", "s3://bucket"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.EventLogS3URI = tc.uri
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for URI %q", tc.uri)
			}
		})
	}
}

func TestEventLogURIParsing(t *testing.T) {
	cfg := validConfig()
	cfg.EventLogS3URI = "s3://log-bucket/logs/events.jsonl"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EventLogBucket() != "log-bucket" {
		t.Errorf("expected bucket 'log-bucket', got %q", cfg.EventLogBucket())
	}
	if cfg.EventLogKey() != "logs/events.jsonl" {
		t.Errorf("expected key 'logs/events.jsonl', got %q", cfg.EventLogKey())
	}
}

func TestInvalidReportURI(t *testing.T) {
	cfg := validConfig()
	cfg.ReportS3URI = "https://bucket/report.json"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-s3 report URI")
	}
}

func TestInvalidShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.ShutdownTimeout = 500 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sub-second shutdown timeout")
	}
}

func TestInvalidMetricsPort(t *testing.T) {
	cfg := validConfig()
	cfg.MetricsPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range metrics port")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{DestinationBucket: "dest-bucket"}
	cfg.ApplyDefaults()

	if cfg.KeyPrefix != "processed_" {
		t.Errorf("expected default prefix 'processed_', got %q", cfg.KeyPrefix)
	}
	if cfg.Transform != "uppercase" {
		t.Errorf("expected default transform 'uppercase', got %q", cfg.Transform)
	}
	if cfg.MaxWorkers < 1 {
		t.Errorf("expected a positive default worker count, got %d", cfg.MaxWorkers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must produce a valid config, got: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("S3STAGE_DESTINATION_BUCKET", "env-bucket")
	t.Setenv("S3STAGE_TRANSFORM", "lowercase")
	t.Setenv("S3STAGE_MAX_WORKERS", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DestinationBucket != "env-bucket" {
		t.Errorf("expected bucket 'env-bucket', got %q", cfg.DestinationBucket)
	}
	if cfg.Transform != "lowercase" {
		t.Errorf("expected transform 'lowercase', got %q", cfg.Transform)
	}
	if cfg.MaxWorkers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.MaxWorkers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected env config to validate, got: %v", err)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	t.Setenv("S3STAGE_DESTINATION_BUCKET", "env-bucket")

	cfg, err := Load("/nonexistent/s3stage.yaml")
	if err != nil {
		t.Fatalf("a missing config file must not be fatal, got: %v", err)
	}
	if cfg.DestinationBucket != "env-bucket" {
		t.Errorf("expected env value to apply, got %q", cfg.DestinationBucket)
	}
}
