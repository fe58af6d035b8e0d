// Package telemetry exposes Prometheus counters for long-running replay
// runs. The lambda path does not use it; there the per-invocation report
// carries the counts.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datapress/s3stage/record"
)

var (
	recordsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stage",
		Name:      "records_succeeded_total",
		Help:      "Records transformed and written to the destination.",
	})
	recordsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s3stage",
		Name:      "records_failed_total",
		Help:      "Records that produced a failure outcome, by kind.",
	}, []string{"kind"})
	recordsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s3stage",
		Name:      "event_records_rejected_total",
		Help:      "Event records rejected at the boundary before processing.",
	})
)

func init() {
	prometheus.MustRegister(recordsSucceeded, recordsFailed, recordsRejected)
}

// RecordOutcome updates the counters for one processed record.
func RecordOutcome(o record.Outcome) {
	if o.OK() {
		recordsSucceeded.Inc()
		return
	}
	if o.Failure.Kind == record.FailureEvent {
		recordsRejected.Inc()
		return
	}
	recordsFailed.WithLabelValues(o.Failure.Kind.String()).Inc()
}

// RecordRejected counts an event record rejected before processing.
func RecordRejected() {
	recordsRejected.Inc()
}

// Expose serves the metrics endpoint in the background.
func Expose(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}
