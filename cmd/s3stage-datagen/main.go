// Package main provides a data generator for end-to-end runs. It seeds a
// source bucket with text objects, optionally mixing in invalid payloads to
// exercise the failure path, and writes a JSON-lines event log referencing
// them for replay.
package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
)

// ObjectPutter defines the storage operation needed by the generator.
// The AWS S3 client satisfies this interface.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile-time check that s3.Client satisfies ObjectPutter
var _ ObjectPutter = (*s3.Client)(nil)

// Config holds the command-line configuration for the data generator.
type Config struct {
	Bucket      string
	Prefix      string
	EventLogKey string
	Region      string
	Count       int
	Columns     int
	Rows        int
	InvalidRate float64
	Seed        int64
}

func randomField(r *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

// csvPayload generates a small comma-separated text payload.
func csvPayload(r *rand.Rand, rows, cols int) []byte {
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		fields := make([]string, cols)
		for j := range fields {
			fields[j] = randomField(r, 3+r.Intn(8))
		}
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}

// invalidPayload generates a byte sequence that is not valid UTF-8.
func invalidPayload(r *rand.Rand) []byte {
	b := make([]byte, 16+r.Intn(64))
	r.Read(b)
	// Guarantee at least one invalid byte sequence regardless of the
	// random content.
	b[0] = 0xff
	b[1] = 0xfe
	return b
}

func run() error {
	fs := flag.NewFlagSet("s3stage-datagen", flag.ExitOnError)
	bucket := fs.String("bucket", "", "Source bucket to seed")
	prefix := fs.String("prefix", "datagen/", "Key prefix for generated objects")
	eventLogKey := fs.String("eventlog", "datagen/events.jsonl.gz", "Key for the generated event log")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	count := fs.Int("count", 100, "Number of objects to generate")
	rows := fs.Int("rows", 10, "Rows per generated object")
	columns := fs.Int("columns", 5, "Columns per generated row")
	invalidRate := fs.Float64("invalid-rate", 0.0, "Fraction of objects with invalid payloads (0..1)")
	seed := fs.Int64("seed", time.Now().UnixNano(), "Random seed")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := Config{
		Bucket:      *bucket,
		Prefix:      *prefix,
		EventLogKey: *eventLogKey,
		Region:      *region,
		Count:       *count,
		Rows:        *rows,
		Columns:     *columns,
		InvalidRate: *invalidRate,
		Seed:        *seed,
	}
	if cfg.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if cfg.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if cfg.InvalidRate < 0 || cfg.InvalidRate > 1 {
		return fmt.Errorf("invalid-rate must be between 0 and 1")
	}

	ctx := context.Background()
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	return generate(ctx, client, cfg)
}

// generate seeds the bucket and writes the event log referencing every
// generated object.
func generate(ctx context.Context, client ObjectPutter, cfg Config) error {
	r := rand.New(rand.NewSource(cfg.Seed))

	// The event log is gzipped JSON lines, matching the format the replay
	// streamer consumes.
	var eventLog bytes.Buffer
	gz := gzip.NewWriter(&eventLog)

	for i := 0; i < cfg.Count; i++ {
		key := fmt.Sprintf("%sobject-%04d.csv", cfg.Prefix, i)

		var payload []byte
		if r.Float64() < cfg.InvalidRate {
			payload = invalidPayload(r)
		} else {
			payload = csvPayload(r, cfg.Rows, cfg.Columns)
		}

		if _, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &cfg.Bucket,
			Key:    &key,
			Body:   bytes.NewReader(payload),
		}); err != nil {
			return fmt.Errorf("failed to put object %s: %w", key, err)
		}

		line, err := json.Marshal(events.S3EventRecord{
			EventSource: "aws:s3",
			EventName:   "ObjectCreated:Put",
			EventTime:   time.Now().UTC(),
			AWSRegion:   cfg.Region,
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: cfg.Bucket},
				Object: events.S3Object{Key: key, Size: int64(len(payload))},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to encode event record: %w", err)
		}
		if _, err := gz.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write event record: %w", err)
		}
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize event log: %w", err)
	}
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &cfg.Bucket,
		Key:    &cfg.EventLogKey,
		Body:   bytes.NewReader(eventLog.Bytes()),
	}); err != nil {
		return fmt.Errorf("failed to put event log: %w", err)
	}

	log.Printf("Generated %d objects in s3://%s/%s with event log s3://%s/%s",
		cfg.Count, cfg.Bucket, cfg.Prefix, cfg.Bucket, cfg.EventLogKey)
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
