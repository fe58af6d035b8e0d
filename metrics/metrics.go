// Package metrics collects per-run counters for the transform pipeline and
// generates the final report. The report deliberately breaks out failure
// counts: a run with failed records still completes successfully, but the
// counts are always surfaced rather than hidden behind a blanket status.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/datapress/s3stage/record"
)

// Metrics collects counters during a run. It uses atomic operations for
// thread-safe updates from concurrent stage invocations.
type Metrics struct {
	succeeded       int64 // Records transformed and written
	decodeFailures  int64 // Payloads that were not valid text
	ioFailures      int64 // Failed source reads or destination writes
	rejectedRecords int64 // Event records rejected at the boundary

	startTime time.Time // When the run started
}

// NewMetrics creates a new Metrics instance with initialized counters
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordOutcome counts the outcome of one processed record.
func (m *Metrics) RecordOutcome(o record.Outcome) {
	if o.OK() {
		atomic.AddInt64(&m.succeeded, 1)
		return
	}
	switch o.Failure.Kind {
	case record.FailureDecoding:
		atomic.AddInt64(&m.decodeFailures, 1)
	case record.FailureEvent:
		atomic.AddInt64(&m.rejectedRecords, 1)
	default:
		atomic.AddInt64(&m.ioFailures, 1)
	}
}

// RecordRejected counts an event record rejected before processing.
func (m *Metrics) RecordRejected() {
	atomic.AddInt64(&m.rejectedRecords, 1)
}

// Report contains the final counters for a run. Failed splits into decode
// and IO failures; RejectedRecords counts malformed trigger entries that
// never reached the stage.
type Report struct {
	StartTime       time.Time     `json:"startTime"`       // When the run started
	EndTime         time.Time     `json:"endTime"`         // When the run completed
	Processed       int64         `json:"processed"`       // Records that reached the stage
	Succeeded       int64         `json:"succeeded"`       // Records transformed and written
	Failed          int64         `json:"failed"`          // Records that produced a failure outcome
	DecodeFailures  int64         `json:"decodeFailures"`  // Failures from undecodable payloads
	IOFailures      int64         `json:"ioFailures"`      // Failures from reads or writes
	RejectedRecords int64         `json:"rejectedRecords"` // Event records rejected at the boundary
	Duration        time.Duration `json:"duration"`        // Total duration of the run
	Throughput      float64       `json:"throughput"`      // Records processed per second
}

// GenerateReport computes the final report from the collected counters.
func (m *Metrics) GenerateReport() Report {
	endTime := time.Now()
	duration := endTime.Sub(m.startTime)

	succeeded := atomic.LoadInt64(&m.succeeded)
	decodeFailures := atomic.LoadInt64(&m.decodeFailures)
	ioFailures := atomic.LoadInt64(&m.ioFailures)
	failed := decodeFailures + ioFailures
	processed := succeeded + failed

	var throughput float64
	if duration > 0 {
		throughput = float64(processed) / duration.Seconds()
	}

	return Report{
		StartTime:       m.startTime,
		EndTime:         endTime,
		Processed:       processed,
		Succeeded:       succeeded,
		Failed:          failed,
		DecodeFailures:  decodeFailures,
		IOFailures:      ioFailures,
		RejectedRecords: atomic.LoadInt64(&m.rejectedRecords),
		Duration:        duration,
		Throughput:      throughput,
	}
}

// MarshalJSON implements json.Marshaler to render the duration as a
// human-readable string in the JSON report.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

// String returns a human-readable representation of the report for console
// output.
func (r Report) String() string {
	return fmt.Sprintf(
		"Run completed in %s\n"+
			"Processed: %d\n"+
			"Succeeded: %d\n"+
			"Failed: %d (decode: %d, io: %d)\n"+
			"Rejected records: %d\n"+
			"Throughput: %.2f records/sec",
		r.Duration,
		r.Processed,
		r.Succeeded,
		r.Failed,
		r.DecodeFailures,
		r.IOFailures,
		r.RejectedRecords,
		r.Throughput,
	)
}
