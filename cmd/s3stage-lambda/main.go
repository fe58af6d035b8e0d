// Package main implements the function entrypoint for storage-triggered
// runs: one invocation per notification event, one outcome per record.
package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/datapress/s3stage/aws"
	"github.com/datapress/s3stage/config"
	"github.com/datapress/s3stage/coordinator"
	"github.com/datapress/s3stage/event"
	"github.com/datapress/s3stage/logging"
	"github.com/datapress/s3stage/stage"
	"github.com/datapress/s3stage/transform"
)

// Response summarizes one invocation. A batch with failed records still
// reports overall success; the counts carry the partial-failure detail.
type Response struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

type handler struct {
	cfg   *config.Config
	stage *stage.Stage
}

// handle processes all records of one notification event concurrently.
// Individual failures are logged and counted, never returned as an
// invocation error.
func (h *handler) handle(ctx context.Context, ev events.S3Event) (Response, error) {
	recs, rejected := event.Records(ev)
	for _, out := range rejected {
		logging.L().Error("rejected event record",
			"key", out.Key, "err", out.Failure.Message)
	}

	coord := coordinator.NewCoordinator(h.cfg, h.stage, nil, nil)
	rep, err := coord.ProcessRecords(ctx, recs, rejected)
	if err != nil {
		return Response{}, err
	}

	logging.L().Info("invocation complete",
		"processed", rep.Processed, "succeeded", rep.Succeeded,
		"failed", rep.Failed, "rejected", rep.RejectedRecords)

	return Response{
		Processed: rep.Processed,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Rejected:  rep.RejectedRecords,
	}, nil
}

// newHandler builds the handler once per container from the environment.
func newHandler(ctx context.Context) (*handler, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Configure(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := aws.NewS3Client(s3.NewFromConfig(awsCfg))

	transformer, err := transform.Lookup(cfg.Transform)
	if err != nil {
		return nil, err
	}

	return &handler{
		cfg:   cfg,
		stage: stage.New(s3Client, transformer, cfg.DestinationBucket, cfg.KeyPrefix),
	}, nil
}

func main() {
	h, err := newHandler(context.Background())
	if err != nil {
		logging.L().Error("startup failed", "err", err)
		panic(err)
	}
	lambda.Start(h.handle)
}
