package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
)

// IngestConfig tunes the background queue.
//
// Workers:        number of goroutines draining the queue.
// QueueSize:      buffered jobs before Enqueue blocks.
// MaxAttempts:    processing attempts per job, retryable failures only.
// RetryBaseDelay: first backoff delay; doubles on every retry.
type IngestConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	c := &IngestConfig{
		Workers:        cfg.IngestWorkers,
		QueueSize:      64,
		MaxAttempts:    cfg.IngestMaxAttempts,
		RetryBaseDelay: 2 * time.Second,
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// Mode selects how a document's chunks are rebuilt.
type Mode int

const (
	// ModeFull replaces every chunk and vector of the document.
	ModeFull Mode = iota
	// ModeReindex diffs fresh chunks against stored rows and writes only the changes.
	ModeReindex
)

func (m Mode) String() string {
	if m == ModeReindex {
		return "reindex"
	}
	return "full"
}

// Job is one unit of queued work.
type Job struct {
	DocumentID string
	Mode       Mode
}
