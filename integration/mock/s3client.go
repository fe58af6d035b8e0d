// Package mock provides an in-memory object store for tests.
package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	stageaws "github.com/datapress/s3stage/aws"
)

// S3Client is an in-memory implementation of the storage client interface.
// It records every PutObject so tests can assert that no write happened on
// a failure path, and supports per-key error injection for IO failures.
type S3Client struct {
	mu sync.Mutex

	// Files maps bucket/key to content
	Files map[string][]byte
	// PutKeys records bucket/key of every PutObject in call order
	PutKeys []string
	// GetErrors and PutErrors inject failures for specific bucket/key pairs
	GetErrors map[string]error
	PutErrors map[string]error
}

// Compile-time interface check
var _ stageaws.S3Client = (*S3Client)(nil)

// NewS3Client creates an empty in-memory client
func NewS3Client() *S3Client {
	return &S3Client{
		Files:     make(map[string][]byte),
		GetErrors: make(map[string]error),
		PutErrors: make(map[string]error),
	}
}

// AddFile stores an object under bucket/key
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[objectKey(bucket, key)] = content
}

// File returns the stored content for bucket/key.
func (m *S3Client) File(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.Files[objectKey(bucket, key)]
	return content, ok
}

func objectKey(bucket, key string) string {
	return fmt.Sprintf("%s/%s", bucket, key)
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey := objectKey(*params.Bucket, *params.Key)
	if err, ok := m.GetErrors[bucketKey]; ok {
		return nil, err
	}

	content, ok := m.Files[bucketKey]
	if !ok {
		return nil, &types.NoSuchKey{
			Message: awssdk.String(fmt.Sprintf("The specified key does not exist: %s", *params.Key)),
		}
	}

	contentLength := int64(len(content))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: &contentLength,
	}, nil
}

// PutObject implements the S3Client interface for writing objects
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucketKey := objectKey(*params.Bucket, *params.Key)
	if err, ok := m.PutErrors[bucketKey]; ok {
		return nil, err
	}

	m.Files[bucketKey] = data
	m.PutKeys = append(m.PutKeys, bucketKey)

	etag := fmt.Sprintf("\"%x\"", len(data))
	return &s3.PutObjectOutput{
		ETag: awssdk.String(etag),
	}, nil
}

// Stream provides a line-oriented reader over a stored object, matching the
// streamer contract used by the replay mode.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	m.mu.Lock()
	content, ok := m.Files[objectKey(bucket, key)]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s", objectKey(bucket, key))
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	lineNum := int64(0)
	for scanner.Scan() {
		if lineNum < offset {
			lineNum++
			continue
		}

		if err := fn(scanner.Bytes(), lineNum); err != nil {
			return err
		}
		lineNum++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return scanner.Err()
}
