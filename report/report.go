// Package report uploads run reports to object storage.
package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/datapress/s3stage/aws"
	"github.com/datapress/s3stage/coordinator"
	"github.com/datapress/s3stage/metrics"
)

// S3Uploader writes JSON reports to an s3:// URI.
type S3Uploader struct {
	client aws.S3Client
}

// Compile-time interface check
var _ coordinator.ReportUploader = (*S3Uploader)(nil)

// NewS3Uploader creates a new S3Uploader instance
func NewS3Uploader(client aws.S3Client) *S3Uploader {
	return &S3Uploader{client: client}
}

// UploadReport marshals the report and writes it to the URI's bucket and key.
func (u *S3Uploader) UploadReport(ctx context.Context, uri string, r metrics.Report) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid report URI: %w", err)
	}
	if parsed.Scheme != "s3" {
		return fmt.Errorf("invalid report URI scheme: %s", parsed.Scheme)
	}
	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	return nil
}
