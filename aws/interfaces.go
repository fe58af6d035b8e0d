// Package aws provides the narrow storage client abstraction the pipeline
// depends on, so tests can substitute an in-memory implementation.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client defines the object storage operations used by the pipeline:
// reading source objects and writing transformed objects and reports.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile-time interface checks to ensure implementations satisfy interfaces
var (
	_ S3Client = (*S3ClientImpl)(nil)

	// AWS SDK interface check to ensure the SDK client satisfies the interface
	_ S3Client = (*s3.Client)(nil)
)
