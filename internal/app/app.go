package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/core/ratelimit"
	vectorindex "github.com/markdave123-py/contexta-ingest/internal/core/vector-index"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient core.ObjectClient
	VectorIndex  core.VectorIndex
	Pipeline     *ingestion_engine.Pipeline
	Ingestor     *ingestion_engine.DocumentIngestor
	Documents    *services.DocumentService
	Versions     *services.VersionService
	Batches      *services.BatchService
	Server       *Server

	closers []func() error
}

// NewApp connects every backend selected by cfg and wires the services on top.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	slog.Info("app: database initialized and ready")

	if a.ObjectClient, err = a.newObjectClient(appCtx, cfg); err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	slog.Info("app: object store ready", "backend", cfg.ObjectBackend)

	if a.VectorIndex, err = a.newVectorIndex(appCtx, cfg); err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	slog.Info("app: vector index ready", "backend", cfg.VectorBackend)

	embedder, err := a.newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	limiter := a.newRateLimiter(cfg)

	generator := embedding.NewGenerator(embedder, embedding.NewCache(dbClient, cfg.EmbedCacheSize), limiter, cfg.EmbedBatchSize)

	a.Pipeline = ingestion_engine.NewPipeline(ingestion_engine.PipelineDeps{
		DB:        dbClient,
		Objects:   a.ObjectClient,
		Index:     a.VectorIndex,
		Extractor: ingestion_engine.NewDocconvExtractor(false),
		Embedder:  generator,
	}, cfg.DefaultRules, cfg.ProcessTimeout)
	a.Ingestor = ingestion_engine.NewDocumentIngestor(a.Pipeline, ingestion_engine.NewIngestConfig(cfg))

	limits := services.NewUploadLimits(cfg)
	a.Versions = services.NewVersionService(dbClient, a.ObjectClient, a.Ingestor)
	a.Documents = services.NewDocumentService(dbClient, a.ObjectClient, a.VectorIndex, a.Ingestor, a.Versions, limits, cfg.DefaultRules)
	a.Batches, err = services.NewBatchService(dbClient, a.ObjectClient, a.Pipeline, limits, cfg.DefaultRules, cfg.BatchWorkers, cfg.ProcessTimeout)
	if err != nil {
		return nil, err
	}

	a.Server = NewServer(cfg, a.Documents, a.Versions, a.Batches)

	ok = true
	return a, nil
}

func (a *App) newObjectClient(ctx context.Context, cfg *config.Config) (core.ObjectClient, error) {
	switch cfg.ObjectBackend {
	case "s3":
		return objectclient.NewS3Client(ctx, cfg)
	case "minio":
		return objectclient.NewMinioClient(ctx, cfg)
	case "badger":
		c, err := objectclient.NewBadgerClient(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown OBJECT_BACKEND %q", cfg.ObjectBackend)
	}
}

func (a *App) newVectorIndex(ctx context.Context, cfg *config.Config) (core.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "qdrant":
		idx, err := vectorindex.NewQdrantIndex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, idx.Close)
		return idx, nil
	case "pgvector":
		return vectorindex.NewPgVectorIndex(ctx, a.DBClient.DB(), cfg.EmbedDim)
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

func (a *App) newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "openai":
		return llm.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbedModel)
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}

func (a *App) newRateLimiter(cfg *config.Config) core.RateLimiter {
	if cfg.RateLimitBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, rdb.Close)
		return ratelimit.NewRedisLimiter(rdb, cfg.EmbedRateLimit, cfg.EmbedRateWindow)
	}
	return ratelimit.NewStoreLimiter(a.DBClient, cfg.EmbedRateLimit, cfg.EmbedRateWindow)
}

// Close releases the batch pool and every backend client, newest first.
func (a *App) Close() {
	if a.Batches != nil {
		a.Batches.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("app: close failed", "err", err)
		}
	}
	a.closers = nil
}
