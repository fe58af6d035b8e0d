package stage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/datapress/s3stage/record"
	"github.com/datapress/s3stage/transform"
)

// mockS3Client implements the aws.S3Client interface for testing
type mockS3Client struct {
	objects map[string][]byte
	puts    []string
	getErr  error
	putErr  error
	gets    int
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	content, ok := m.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", *params.Key)
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(content)),
	}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	key := *params.Bucket + "/" + *params.Key
	m.objects[key] = data
	m.puts = append(m.puts, key)
	return &s3.PutObjectOutput{}, nil
}

func incoming(t *testing.T, bucket, key string) record.Incoming {
	t.Helper()
	in, err := record.NewIncoming(bucket, key)
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	return in
}

func TestProcessHappyPath(t *testing.T) {
	client := newMockS3Client()
	client.objects["source-bucket/data.csv"] = []byte("a,b,c")

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	out := st.Process(context.Background(), incoming(t, "source-bucket", "data.csv"))

	if !out.OK() {
		t.Fatalf("expected success, got failure: %+v", out.Failure)
	}
	if out.Out.Key != "processed_data.csv" {
		t.Errorf("expected key 'processed_data.csv', got %q", out.Out.Key)
	}
	if string(out.Out.Payload) != "A,B,C" {
		t.Errorf("expected payload 'A,B,C', got %q", out.Out.Payload)
	}
	if out.Out.Destination.Bucket != "dest-bucket" {
		t.Errorf("expected destination bucket 'dest-bucket', got %q", out.Out.Destination.Bucket)
	}

	written, ok := client.objects["dest-bucket/processed_data.csv"]
	if !ok {
		t.Fatal("expected transformed object at the destination")
	}
	if string(written) != "A,B,C" {
		t.Errorf("expected written payload 'A,B,C', got %q", written)
	}
	if client.gets != 1 || len(client.puts) != 1 {
		t.Errorf("expected exactly one read and one write, got %d reads and %d writes",
			client.gets, len(client.puts))
	}
}

func TestProcessInvalidPayload(t *testing.T) {
	client := newMockS3Client()
	client.objects["source-bucket/data.csv"] = []byte{0xff, 0xfe, 0xfd}

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	out := st.Process(context.Background(), incoming(t, "source-bucket", "data.csv"))

	if out.OK() {
		t.Fatal("expected failure for invalid payload")
	}
	if out.Key != "data.csv" {
		t.Errorf("failure must carry the original key, got %q", out.Key)
	}
	if out.Failure.Kind != record.FailureDecoding {
		t.Errorf("expected decoding failure, got %v", out.Failure.Kind)
	}
	if !strings.Contains(out.Failure.Message, "not valid UTF-8") {
		t.Errorf("expected a decoding message, got %q", out.Failure.Message)
	}
	// No partial write on the failure path.
	if len(client.puts) != 0 {
		t.Errorf("expected no writes, got %v", client.puts)
	}
}

func TestProcessReadFailure(t *testing.T) {
	client := newMockS3Client()
	client.getErr = fmt.Errorf("connection reset")

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	out := st.Process(context.Background(), incoming(t, "source-bucket", "data.csv"))

	if out.OK() {
		t.Fatal("expected failure when the read fails")
	}
	if out.Failure.Kind != record.FailureIO {
		t.Errorf("expected IO failure, got %v", out.Failure.Kind)
	}
	if len(client.puts) != 0 {
		t.Error("expected no writes after a failed read")
	}
}

func TestProcessWriteFailure(t *testing.T) {
	client := newMockS3Client()
	client.objects["source-bucket/data.csv"] = []byte("a,b,c")
	client.putErr = fmt.Errorf("access denied")

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	out := st.Process(context.Background(), incoming(t, "source-bucket", "data.csv"))

	if out.OK() {
		t.Fatal("expected failure when the write fails")
	}
	if out.Failure.Kind != record.FailureIO {
		t.Errorf("expected IO failure, got %v", out.Failure.Kind)
	}
	if out.Key != "data.csv" {
		t.Errorf("failure must carry the original key, got %q", out.Key)
	}
}

func TestProcessIdempotent(t *testing.T) {
	client := newMockS3Client()
	client.objects["source-bucket/data.csv"] = []byte("a,b,c")

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	in := incoming(t, "source-bucket", "data.csv")

	first := st.Process(context.Background(), in)
	second := st.Process(context.Background(), in)

	if !first.OK() || !second.OK() {
		t.Fatal("expected both runs to succeed")
	}
	if first.Out.Key != second.Out.Key {
		t.Errorf("reprocessing changed the key: %q != %q", first.Out.Key, second.Out.Key)
	}
	if !bytes.Equal(first.Out.Payload, second.Out.Payload) {
		t.Error("reprocessing changed the payload")
	}
	if first.Out.Destination != second.Out.Destination {
		t.Errorf("reprocessing changed the destination: %v != %v",
			first.Out.Destination, second.Out.Destination)
	}
}

func TestProcessPrefetchedPayload(t *testing.T) {
	client := newMockS3Client()

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	in := incoming(t, "source-bucket", "data.csv")
	in.Payload = []byte("a,b,c")

	out := st.Process(context.Background(), in)
	if !out.OK() {
		t.Fatalf("expected success, got failure: %+v", out.Failure)
	}
	if client.gets != 0 {
		t.Errorf("expected no storage read for a prefetched payload, got %d", client.gets)
	}
	if string(out.Out.Payload) != "A,B,C" {
		t.Errorf("expected payload 'A,B,C', got %q", out.Out.Payload)
	}
}

func TestProcessCustomPrefix(t *testing.T) {
	client := newMockS3Client()
	client.objects["source-bucket/data.csv"] = []byte("a,b,c")

	st := New(client, transform.Lowercase{}, "dest-bucket", "out/")
	out := st.Process(context.Background(), incoming(t, "source-bucket", "data.csv"))

	if !out.OK() {
		t.Fatalf("expected success, got failure: %+v", out.Failure)
	}
	if out.Out.Key != "out/data.csv" {
		t.Errorf("expected key 'out/data.csv', got %q", out.Out.Key)
	}
}

// BenchmarkProcess measures the per-record processing cost with an
// in-memory client.
func BenchmarkProcess(b *testing.B) {
	client := newMockS3Client()
	payload := []byte(strings.Repeat("a,b,c,d,e,f,g,h\n", 100))
	client.objects["source-bucket/data.csv"] = payload

	st := New(client, transform.Uppercase{}, "dest-bucket", "")
	in, _ := record.NewIncoming("source-bucket", "data.csv")

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = st.Process(ctx, in)
	}
}
