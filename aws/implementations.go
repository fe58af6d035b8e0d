// Package aws provides the narrow storage client abstraction the pipeline
// depends on. This file contains the concrete SDK-backed implementation.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientImpl implements S3Client using the AWS SDK.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client creates a new S3ClientImpl instance
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

// GetObject implements the S3Client interface for reading objects
func (c *S3ClientImpl) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return c.client.GetObject(ctx, params, optFns...)
}

// PutObject implements the S3Client interface for writing objects
func (c *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.client.PutObject(ctx, params, optFns...)
}
