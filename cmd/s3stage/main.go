// Package main implements the command-line interface for running the
// transform stage locally: a single object, or a replay of a recorded
// event log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/s3streamer"

	"github.com/datapress/s3stage/aws"
	"github.com/datapress/s3stage/config"
	"github.com/datapress/s3stage/coordinator"
	"github.com/datapress/s3stage/logging"
	"github.com/datapress/s3stage/record"
	"github.com/datapress/s3stage/report"
	"github.com/datapress/s3stage/stage"
	"github.com/datapress/s3stage/telemetry"
	"github.com/datapress/s3stage/transform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses flags, validates configuration, and executes one of the two
// modes. Per-record failures are reported through the run report, not
// through the exit code; only infrastructure failures exit non-zero.
func run() error {
	fs := flag.NewFlagSet("s3stage", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to a YAML config file (flags below are ignored except -bucket/-key)")

	destBucket := fs.String("dest", "", "Destination bucket for transformed objects")
	keyPrefix := fs.String("prefix", record.DefaultKeyPrefix, "Prefix deriving outgoing keys from source keys")
	transformName := fs.String("transform", transform.DefaultName, "Transform to apply")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	maxWorkers := fs.Int("workers", 4, "Maximum number of concurrent stage invocations")
	eventLogURI := fs.String("events", "", "S3 URI of a JSON-lines event log to replay")
	reportURI := fs.String("report", "", "S3 URI for the final report")
	metricsPort := fs.Int("metrics-port", 0, "Port for the Prometheus endpoint (0 disables)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	logLevel := fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	logJSON := fs.Bool("log-json", false, "Emit JSON logs")

	srcBucket := fs.String("bucket", "", "Source bucket (single object mode)")
	srcKey := fs.String("key", "", "Source key (single object mode)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{
			DestinationBucket: *destBucket,
			KeyPrefix:         *keyPrefix,
			Transform:         *transformName,
			Region:            *region,
			MaxWorkers:        *maxWorkers,
			EventLogS3URI:     *eventLogURI,
			ReportS3URI:       *reportURI,
			MetricsPort:       *metricsPort,
			ShutdownTimeout:   *shutdownTimeout,
			LogLevel:          *logLevel,
			LogJSON:           *logJSON,
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Configure(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)

	transformer, err := transform.Lookup(cfg.Transform)
	if err != nil {
		return err
	}
	st := stage.New(s3Client, transformer, cfg.DestinationBucket, cfg.KeyPrefix)

	if cfg.MetricsPort > 0 {
		telemetry.Expose(cfg.MetricsPort)
	}

	// Replay mode: process every record referenced by the event log.
	if cfg.EventLogS3URI != "" {
		streamer := s3streamer.NewS3Streamer(rawS3Client)
		uploader := report.NewS3Uploader(s3Client)
		coord := coordinator.NewCoordinator(cfg, st, streamer, uploader)

		fmt.Printf("Replaying event log %s\n", cfg.EventLogS3URI)
		if _, err := coord.Replay(ctx); err != nil {
			return err
		}
		return nil
	}

	// Single object mode.
	if *srcBucket == "" || *srcKey == "" {
		return fmt.Errorf("either -events or both -bucket and -key are required")
	}
	in, err := record.NewIncoming(*srcBucket, *srcKey)
	if err != nil {
		return err
	}

	out := st.Process(ctx, in)
	if !out.OK() {
		return fmt.Errorf("record %s failed (%s): %s", out.Key, out.Failure.Kind, out.Failure.Message)
	}
	fmt.Printf("Wrote %s\n", out.Out.Destination)
	return nil
}
