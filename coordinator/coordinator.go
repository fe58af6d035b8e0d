// Package coordinator fans incoming records out to concurrent stage
// invocations. Records are independent, so workers share nothing but the
// task channel; ordering between records is neither guaranteed nor needed.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gurre/s3streamer"

	"github.com/datapress/s3stage/config"
	"github.com/datapress/s3stage/event"
	"github.com/datapress/s3stage/logging"
	"github.com/datapress/s3stage/metrics"
	"github.com/datapress/s3stage/record"
	"github.com/datapress/s3stage/stage"
	"github.com/datapress/s3stage/telemetry"
)

// WorkerStatus tracks per-worker progress for monitoring.
// Fields are ordered largest-to-smallest for optimal memory alignment.
type WorkerStatus struct {
	LastErrorTime time.Time // When the last failure outcome occurred
	StartTime     time.Time // When the worker started
	LastActive    time.Time // Last activity timestamp
	CurrentKey    string    // Key currently being processed
	LastFailure   string    // Message of the last failure outcome
	Succeeded     int64     // Records this worker processed successfully
	Failed        int64     // Records this worker failed
	ID            int       // Worker identifier
}

// ReportUploader uploads run reports to S3.
type ReportUploader interface {
	UploadReport(ctx context.Context, uri string, report metrics.Report) error
}

// Coordinator drives a run: it feeds records to a pool of workers, each of
// which invokes the stage, and aggregates outcomes into the run metrics.
// Per-record failures never abort the run; only context cancellation or an
// infrastructure error (for example a failed event log stream) does.
type Coordinator struct {
	cfg            *config.Config
	stage          *stage.Stage
	streamer       s3streamer.Streamer
	metrics        *metrics.Metrics
	reportUploader ReportUploader

	workerStatus map[int]*WorkerStatus
	statusMu     sync.RWMutex
}

// NewCoordinator creates a Coordinator. The streamer and reportUploader may
// be nil when the replay mode or report upload is not used.
func NewCoordinator(
	cfg *config.Config,
	st *stage.Stage,
	streamer s3streamer.Streamer,
	reportUploader ReportUploader,
) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		stage:          st,
		streamer:       streamer,
		metrics:        metrics.NewMetrics(),
		reportUploader: reportUploader,
		workerStatus:   make(map[int]*WorkerStatus),
	}
}

// ProcessRecords runs a fixed set of records through the worker pool and
// returns the run report. Rejected boundary outcomes may be passed in so
// they are counted alongside the processed records.
func (c *Coordinator) ProcessRecords(ctx context.Context, recs []record.Incoming, rejected []record.Outcome) (metrics.Report, error) {
	for range rejected {
		c.metrics.RecordRejected()
		telemetry.RecordRejected()
	}

	err := c.runPool(ctx, func(tasks chan<- record.Incoming) error {
		for _, in := range recs {
			select {
			case tasks <- in:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return metrics.Report{}, err
	}

	return c.metrics.GenerateReport(), nil
}

// Replay streams the configured event log from S3 and processes every
// record it references. It installs signal handling, reports progress while
// running, prints the final report, and uploads it when configured.
func (c *Coordinator) Replay(ctx context.Context) (metrics.Report, error) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, os.Kill)
	defer cancel()

	if c.streamer == nil {
		return metrics.Report{}, fmt.Errorf("no streamer configured")
	}
	if c.cfg.EventLogS3URI == "" {
		return metrics.Report{}, fmt.Errorf("no event log configured")
	}

	go c.reportProgress(ctx)

	err := c.runPool(ctx, func(tasks chan<- record.Incoming) error {
		return c.streamer.Stream(ctx, c.cfg.EventLogBucket(), c.cfg.EventLogKey(), 0,
			func(line []byte, byteOffset int64) error {
				if len(line) == 0 {
					return nil
				}
				in, err := event.DecodeLine(line)
				if err != nil {
					// A malformed log entry is contained like any other
					// per-record failure.
					logging.L().Warn("rejected event log entry",
						"offset", byteOffset, "err", err)
					c.metrics.RecordRejected()
					telemetry.RecordRejected()
					return nil
				}
				select {
				case tasks <- in:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
	})
	if err != nil {
		return metrics.Report{}, fmt.Errorf("failed to replay event log %s: %w", c.cfg.EventLogS3URI, err)
	}

	report := c.metrics.GenerateReport()
	fmt.Println(report)

	if c.cfg.ReportS3URI != "" && c.reportUploader != nil {
		if err := c.reportUploader.UploadReport(ctx, c.cfg.ReportS3URI, report); err != nil {
			return report, fmt.Errorf("failed to upload report: %w", err)
		}
		logging.L().Info("report uploaded", "uri", c.cfg.ReportS3URI)
	}

	return report, nil
}

// runPool starts the workers, runs feed to enqueue records, and waits for
// the pool to drain. feed owns delivery into the tasks channel and must
// honor context cancellation.
func (c *Coordinator) runPool(ctx context.Context, feed func(tasks chan<- record.Incoming) error) error {
	tasks := make(chan record.Incoming)
	var wg sync.WaitGroup

	for i := 0; i < c.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.initWorker(workerID)
			c.worker(ctx, workerID, tasks)
		}(i)
	}

	feedErr := feed(tasks)
	close(tasks)
	wg.Wait()

	if feedErr != nil {
		return feedErr
	}
	return ctx.Err()
}

// worker processes records from the task channel until it is closed. Every
// record yields exactly one outcome; failures are recorded, not propagated.
func (c *Coordinator) worker(ctx context.Context, id int, tasks <-chan record.Incoming) {
	for in := range tasks {
		c.updateWorkerStatus(id, func(s *WorkerStatus) {
			s.CurrentKey = in.Key
		})

		out := c.stage.Process(ctx, in)
		c.metrics.RecordOutcome(out)
		telemetry.RecordOutcome(out)

		c.updateWorkerStatus(id, func(s *WorkerStatus) {
			if out.OK() {
				s.Succeeded++
			} else {
				s.Failed++
				s.LastFailure = out.Failure.Message
				s.LastErrorTime = time.Now()
			}
		})
	}
}

// initWorker initializes a worker's status tracking
func (c *Coordinator) initWorker(id int) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.workerStatus[id] = &WorkerStatus{
		ID:        id,
		StartTime: time.Now(),
	}
}

// updateWorkerStatus updates a worker's status for monitoring
func (c *Coordinator) updateWorkerStatus(id int, fn func(*WorkerStatus)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if status, ok := c.workerStatus[id]; ok {
		fn(status)
		status.LastActive = time.Now()
	}
}

// reportProgress periodically logs run progress until the context ends.
func (c *Coordinator) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.statusMu.RLock()
			var succeeded, failed int64
			activeWorkers := 0
			for _, status := range c.workerStatus {
				if time.Since(status.LastActive) < 10*time.Second {
					activeWorkers++
				}
				succeeded += status.Succeeded
				failed += status.Failed
			}
			c.statusMu.RUnlock()

			logging.L().Info("progress",
				"succeeded", succeeded, "failed", failed, "active_workers", activeWorkers)

		case <-ctx.Done():
			return
		}
	}
}
