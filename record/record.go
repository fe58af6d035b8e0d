// Package record defines the data model flowing through the transform
// pipeline: incoming records constructed at the trigger boundary, outgoing
// records produced by a successful transform, and the per-record outcome.
package record

import (
	"fmt"
	"unicode/utf8"
)

// DefaultKeyPrefix is prepended to the source key to derive the outgoing key.
const DefaultKeyPrefix = "processed_"

// Location identifies an object by bucket and key.
type Location struct {
	Bucket string
	Key    string
}

// String returns the location as an s3:// URI.
func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// Incoming is one record received from the trigger boundary. It is immutable
// once constructed. Payload is optional: when nil, the stage performs the
// single read from Source; when set, the payload was already fetched at the
// boundary and no storage read occurs.
type Incoming struct {
	Key     string
	Payload []byte
	Source  Location
}

// NewIncoming constructs a validated incoming record from a source bucket
// and key. The record key is the source key.
func NewIncoming(bucket, key string) (Incoming, error) {
	if bucket == "" {
		return Incoming{}, fmt.Errorf("source bucket is required")
	}
	if key == "" {
		return Incoming{}, fmt.Errorf("source key is required")
	}
	return Incoming{
		Key:    key,
		Source: Location{Bucket: bucket, Key: key},
	}, nil
}

// ErrNotText is returned when a payload cannot be decoded as text.
var ErrNotText = fmt.Errorf("payload is not valid UTF-8 text")

// Text decodes a payload as UTF-8 text. Payloads that are not valid UTF-8
// yield ErrNotText.
func Text(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", ErrNotText
	}
	return string(payload), nil
}

// DerivedKey derives the outgoing key from a source key.
func DerivedKey(prefix, sourceKey string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + sourceKey
}

// Outgoing is the product of a successful transform.
type Outgoing struct {
	Key         string
	Payload     []byte
	Destination Location
}

// FailureKind classifies per-record failures.
type FailureKind int

const (
	// FailureEvent marks a trigger record rejected at the boundary before
	// it reached the transform stage.
	FailureEvent FailureKind = iota
	// FailureDecoding marks a payload that could not be decoded as text.
	FailureDecoding
	// FailureIO marks a failed read from the source or write to the
	// destination.
	FailureIO
)

// String returns the failure kind name used in logs and reports.
func (k FailureKind) String() string {
	switch k {
	case FailureEvent:
		return "event"
	case FailureDecoding:
		return "decoding"
	case FailureIO:
		return "io"
	default:
		return "unknown"
	}
}

// Failure carries the classification and human-readable message for a
// failed record.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Outcome is the result of processing one incoming record. Exactly one
// Outcome exists per record: Out is set on success, Failure on failure,
// never both.
type Outcome struct {
	Key     string
	Out     *Outgoing
	Failure *Failure
}

// OK reports whether the record was processed successfully.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Success wraps an outgoing record in a successful outcome.
func Success(key string, out Outgoing) Outcome {
	return Outcome{Key: key, Out: &out}
}

// Fail builds a failure outcome carrying the original record key and a
// human-readable message.
func Fail(key string, kind FailureKind, err error) Outcome {
	return Outcome{
		Key:     key,
		Failure: &Failure{Kind: kind, Message: err.Error()},
	}
}
