// Package event converts object storage notifications into validated
// incoming records. Malformed notification records are rejected here,
// before they reach the transform stage, and rejection is per record: one
// bad entry never discards the rest of the event.
package event

import (
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	json "github.com/goccy/go-json"

	"github.com/datapress/s3stage/record"
)

// ErrMalformed is returned when a notification record cannot be converted
// into an incoming record.
var ErrMalformed = fmt.Errorf("malformed event record")

// FromRecord converts a single notification record. Object keys arrive
// URL-encoded in S3 notifications and are decoded here.
func FromRecord(r events.S3EventRecord) (record.Incoming, error) {
	bucket := r.S3.Bucket.Name
	if bucket == "" {
		return record.Incoming{}, fmt.Errorf("%w: missing bucket name", ErrMalformed)
	}
	rawKey := r.S3.Object.Key
	if rawKey == "" {
		return record.Incoming{}, fmt.Errorf("%w: missing object key", ErrMalformed)
	}
	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return record.Incoming{}, fmt.Errorf("%w: undecodable object key %q: %v", ErrMalformed, rawKey, err)
	}
	in, err := record.NewIncoming(bucket, key)
	if err != nil {
		return record.Incoming{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return in, nil
}

// Records converts all records of a notification event. Valid records are
// returned in order; each malformed record yields a failure outcome carrying
// whatever key material the record had.
func Records(ev events.S3Event) ([]record.Incoming, []record.Outcome) {
	recs := make([]record.Incoming, 0, len(ev.Records))
	var rejected []record.Outcome
	for _, r := range ev.Records {
		in, err := FromRecord(r)
		if err != nil {
			rejected = append(rejected, record.Fail(r.S3.Object.Key, record.FailureEvent, err))
			continue
		}
		recs = append(recs, in)
	}
	return recs, rejected
}

// DecodeLine parses one line of a replayed event log. Each line holds a
// single notification record as JSON.
func DecodeLine(line []byte) (record.Incoming, error) {
	var r events.S3EventRecord
	if err := json.Unmarshal(line, &r); err != nil {
		return record.Incoming{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromRecord(r)
}
