package services

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
)

// Dispatcher hands a job to the ingestion pipeline. The background ingestor
// queues it; the pipeline itself runs it inline.
type Dispatcher interface {
	Dispatch(ctx context.Context, job ingestion_engine.Job) error
}

// Processor runs the full pipeline for one document and returns when it is done.
type Processor interface {
	Process(ctx context.Context, documentID string) error
}
