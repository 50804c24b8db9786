package ingestion_engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// Runner executes a job to completion.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// DocumentIngestor is the background queue: a bounded channel of jobs drained
// by a fixed set of workers. Retryable failures are retried with backoff.
type DocumentIngestor struct {
	runner Runner
	cfg    *IngestConfig
	jobs   chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewDocumentIngestor(runner Runner, cfg *IngestConfig) *DocumentIngestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &DocumentIngestor{
		runner: runner,
		cfg:    cfg,
		jobs:   make(chan Job, cfg.QueueSize),
		logger: slog.Default().With("component", "ingestor"),
	}
}

// Start launches the workers. They stop when ctx is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context) {
	for w := 1; w <= i.cfg.Workers; w++ {
		i.wg.Add(1)
		go func(w int) {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					i.logger.Debug("worker shutting down", "worker", w)
					return
				case job := <-i.jobs:
					i.logger.Info("processing document", "document_id", job.DocumentID, "mode", job.Mode, "worker", w)
					if err := i.processOne(ctx, job); err != nil {
						i.logger.Error("document processing failed", "document_id", job.DocumentID, "err", err)
					}
				}
			}
		}(w)
	}
}

// Wait blocks until every worker has exited.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// Enqueue schedules a job. If the queue is full it blocks until space frees up or ctx ends.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch queues job for background processing.
func (i *DocumentIngestor) Dispatch(ctx context.Context, job Job) error {
	return i.Enqueue(ctx, job)
}

func (i *DocumentIngestor) processOne(ctx context.Context, job Job) error {
	return RetryWithBackoff(ctx, func() error {
		return i.runner.Run(ctx, job)
	}, core.IsRetryable, i.cfg.MaxAttempts, i.cfg.RetryBaseDelay)
}
