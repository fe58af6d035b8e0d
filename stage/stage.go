// Package stage implements the file transform stage: one read from the
// source location, a pure text transform, one write to the destination,
// and exactly one outcome per record.
package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/datapress/s3stage/aws"
	"github.com/datapress/s3stage/logging"
	"github.com/datapress/s3stage/record"
	"github.com/datapress/s3stage/transform"
)

// Stage processes incoming records independently: invocations share no
// mutable state and may run concurrently. The destination write only
// happens after the transform succeeded, so a failed record leaves no
// partial output behind.
type Stage struct {
	client      aws.S3Client
	transformer transform.Transformer
	destBucket  string
	keyPrefix   string
}

// New creates a Stage writing transformed objects to destBucket under keys
// derived with keyPrefix (empty selects the default prefix).
func New(client aws.S3Client, transformer transform.Transformer, destBucket, keyPrefix string) *Stage {
	if keyPrefix == "" {
		keyPrefix = record.DefaultKeyPrefix
	}
	return &Stage{
		client:      client,
		transformer: transformer,
		destBucket:  destBucket,
		keyPrefix:   keyPrefix,
	}
}

// Process runs one record through the stage and returns its outcome. All
// errors are contained here: a read or write failure becomes an IO failure
// outcome, an undecodable payload a decoding failure outcome. Processing is
// idempotent: rerunning the same input produces an identical outgoing
// record.
func (s *Stage) Process(ctx context.Context, in record.Incoming) record.Outcome {
	payload := in.Payload
	if payload == nil {
		data, err := s.read(ctx, in.Source)
		if err != nil {
			return s.fail(in.Key, record.FailureIO, fmt.Errorf("read %s: %w", in.Source, err))
		}
		payload = data
	}

	text, err := record.Text(payload)
	if err != nil {
		return s.fail(in.Key, record.FailureDecoding, fmt.Errorf("decode %s: %w", in.Source, err))
	}

	out := record.Outgoing{
		Key:     record.DerivedKey(s.keyPrefix, in.Key),
		Payload: []byte(s.transformer.Apply(text)),
	}
	out.Destination = record.Location{Bucket: s.destBucket, Key: out.Key}

	if err := s.write(ctx, out); err != nil {
		return s.fail(in.Key, record.FailureIO, fmt.Errorf("write %s: %w", out.Destination, err))
	}

	logging.L().Debug("record processed",
		"key", in.Key, "destination", out.Destination.String(), "transform", s.transformer.Name())
	return record.Success(in.Key, out)
}

func (s *Stage) read(ctx context.Context, loc record.Location) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

func (s *Stage) write(ctx context.Context, out record.Outgoing) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &out.Destination.Bucket,
		Key:    &out.Destination.Key,
		Body:   bytes.NewReader(out.Payload),
	})
	return err
}

// fail logs the failure with the record key and wraps it in an outcome.
func (s *Stage) fail(key string, kind record.FailureKind, err error) record.Outcome {
	logging.L().Error("record failed", "key", key, "kind", kind.String(), "err", err)
	return record.Fail(key, kind, err)
}
