package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Progress checkpoints reported while a document is processed.
const (
	progressExtracting = 10
	progressCleaning   = 20
	progressChunking   = 40
	progressEmbedding  = 50
	progressWriting    = 80
	progressFinalizing = 85
)

// FileHash is the content hash stored in last_updated_hash and document_versions.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Pipeline runs Extract, Clean, Chunk, Embed, Write and Finalize for one document.
type Pipeline struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor core.DocumentExtractor
	cleaner   core.TextCleaner
	chunker   core.Chunker
	embedder  *embedding.Generator
	writer    *DualStoreWriter
	defaults  models.ProcessingRules
	timeout   time.Duration
	logger    *slog.Logger
}

type PipelineDeps struct {
	DB        core.DbClient
	Objects   core.ObjectClient
	Index     core.VectorIndex
	Extractor core.DocumentExtractor
	Cleaner   core.TextCleaner
	Chunker   core.Chunker
	Embedder  *embedding.Generator
}

func NewPipeline(deps PipelineDeps, defaults models.ProcessingRules, timeout time.Duration) *Pipeline {
	if deps.Cleaner == nil {
		deps.Cleaner = RegexCleaner{}
	}
	if deps.Chunker == nil {
		deps.Chunker = LineChunker{}
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Pipeline{
		db:        deps.DB,
		obj:       deps.Objects,
		extractor: deps.Extractor,
		cleaner:   deps.Cleaner,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		writer:    NewDualStoreWriter(deps.DB, deps.Index),
		defaults:  defaults,
		timeout:   timeout,
		logger:    slog.Default().With("component", "ingestion"),
	}
}

// Dispatch runs job inline. It lets callers treat the pipeline and the
// background ingestor interchangeably.
func (p *Pipeline) Dispatch(ctx context.Context, job Job) error {
	return p.Run(ctx, job)
}

func (p *Pipeline) Run(ctx context.Context, job Job) error {
	if job.Mode == ModeReindex {
		return p.Reindex(ctx, job.DocumentID)
	}
	return p.Process(ctx, job.DocumentID)
}

// Process regenerates every chunk and vector of the document from its live file.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	return p.runGuarded(ctx, documentID, ModeFull, func(ctx context.Context, doc *models.Document, prep *prepared) (int, error) {
		rows := make([]models.DocumentChunk, 0, len(prep.chunks))
		for _, c := range prep.chunks {
			rows = append(rows, NewChunkRow(doc.ID, c))
		}

		p.progress(ctx, doc.ID, progressEmbedding, "embedding")
		vectors, err := p.embed(ctx, doc.UserID, rows)
		if err != nil {
			return 0, err
		}

		p.progress(ctx, doc.ID, progressWriting, "writing")
		err = p.writer.Apply(ctx, WritePlan{
			Document:   doc,
			ReplaceAll: true,
			Insert:     rows,
			Vectors:    vectors,
		})
		if err != nil {
			return 0, err
		}
		return len(rows), nil
	})
}

// Reindex diffs the live file's chunks against stored rows and writes only the changes.
func (p *Pipeline) Reindex(ctx context.Context, documentID string) error {
	return p.runGuarded(ctx, documentID, ModeReindex, func(ctx context.Context, doc *models.Document, prep *prepared) (int, error) {
		existing, err := p.db.ListChunksByDocument(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("load chunks: %w", err)
		}
		diff := DiffChunks(doc.ID, existing, prep.chunks)
		p.logger.Info("reindex diff", "document_id", doc.ID,
			"unchanged", len(diff.Unchanged), "relocated", len(diff.Relocated),
			"updated", len(diff.Updated), "added", len(diff.Added), "deleted", len(diff.Deleted))

		if diff.Changed() {
			// Relocated rows keep their text, so their vectors come from the cache;
			// they are rewritten to refresh payload hints.
			update := append(append([]models.DocumentChunk(nil), diff.Updated...), diff.Relocated...)

			p.progress(ctx, doc.ID, progressEmbedding, "embedding")
			vectors, err := p.embed(ctx, doc.UserID, append(append([]models.DocumentChunk(nil), update...), diff.Added...))
			if err != nil {
				return 0, err
			}

			p.progress(ctx, doc.ID, progressWriting, "writing")
			err = p.writer.Apply(ctx, WritePlan{
				Document:        doc,
				Delete:          diff.DeletedIDs(),
				Update:          update,
				Insert:          diff.Added,
				Vectors:         vectors,
				Previous:        previousRows(existing, update, diff.Deleted),
				PreviousVectors: p.embedder.Lookup,
			})
			if err != nil {
				return 0, err
			}
		}
		return len(prep.chunks), nil
	})
}

// previousRows returns the stored rows that a reindex overwrites or deletes.
func previousRows(existing []models.DocumentChunk, groups ...[]models.DocumentChunk) []models.DocumentChunk {
	touched := make(map[int64]bool)
	for _, g := range groups {
		for _, ch := range g {
			touched[ch.ID] = true
		}
	}
	var out []models.DocumentChunk
	for _, ch := range existing {
		if touched[ch.ID] {
			out = append(out, ch)
		}
	}
	return out
}

type prepared struct {
	fileHash string
	chunks   []core.Chunk
}

type stageFunc func(ctx context.Context, doc *models.Document, prep *prepared) (chunkCount int, err error)

// runGuarded sets the document to processing, runs the shared front stages and
// stage, and finalizes. Any error or panic leaves the document failed with a
// message before it propagates.
func (p *Pipeline) runGuarded(ctx context.Context, documentID string, mode Mode, stage stageFunc) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	doc, err := p.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", core.ErrDocumentNotFound, documentID)
	}

	if err := p.db.MarkDocumentProcessing(ctx, doc.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, doc.ID, fmt.Sprintf("internal error: %v", r))
			panic(r)
		}
		if err == nil {
			return
		}
		msg := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("processing timed out after %s", p.timeout)
			err = fmt.Errorf("%s: %w", msg, context.DeadlineExceeded)
		}
		p.fail(ctx, doc.ID, msg)
		p.logger.Error("document failed", "document_id", doc.ID, "mode", mode, "err", err)
	}()

	prep, err := p.prepare(ctx, doc)
	if err != nil {
		return err
	}

	count, err := stage(ctx, doc, prep)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.progress(ctx, doc.ID, progressFinalizing, "finalizing")
	if err := p.db.MarkDocumentCompleted(ctx, doc.ID, count, prep.fileHash); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	p.logger.Info("document completed", "document_id", doc.ID, "mode", mode,
		"chunks", count, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

// prepare fetches the live file and runs extraction, cleaning and chunking.
func (p *Pipeline) prepare(ctx context.Context, doc *models.Document) (*prepared, error) {
	p.progress(ctx, doc.ID, progressExtracting, "extracting")
	data, err := p.obj.GetFile(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	extracted, err := p.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return nil, err
	}

	space, err := p.db.GetOrCreateSpace(ctx, doc.UserID, p.defaults)
	if err != nil {
		return nil, fmt.Errorf("load space: %w", err)
	}
	rules := space.Rules
	config.ApplyRuleDefaults(&rules)

	p.progress(ctx, doc.ID, progressCleaning, "cleaning")
	text := p.cleaner.Clean(extracted.Text, rules)

	p.progress(ctx, doc.ID, progressChunking, "chunking")
	chunks := p.chunker.Chunk(text, rules, PageMap(text))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced", core.ErrChunking)
	}

	return &prepared{fileHash: FileHash(data), chunks: chunks}, nil
}

// embed returns vectors for rows keyed by chunk index.
func (p *Pipeline) embed(ctx context.Context, userID string, rows []models.DocumentChunk) (map[int][]float32, error) {
	texts := make([]string, len(rows))
	for i, r := range rows {
		texts[i] = r.Text
	}
	vecs, stats, err := p.embedder.Embed(ctx, userID, texts)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("embedded chunks", "user_id", userID, "chunks", len(rows),
		"cache_hits", stats.CacheHits, "provider_calls", stats.ProviderCalls)

	out := make(map[int][]float32, len(rows))
	for i, r := range rows {
		out[r.ChunkIndex] = vecs[i]
	}
	return out, nil
}

func (p *Pipeline) progress(ctx context.Context, documentID string, pct int, stage string) {
	if err := p.db.UpdateDocumentProgress(ctx, documentID, pct, stage); err != nil {
		p.logger.Warn("progress update failed", "document_id", documentID, "stage", stage, "err", err)
	}
}

// fail records the failure on a context that survives the caller's cancellation.
func (p *Pipeline) fail(ctx context.Context, documentID, message string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.db.MarkDocumentFailed(fctx, documentID, message); err != nil {
		p.logger.Error("could not mark document failed", "document_id", documentID, "err", err)
	}
}
