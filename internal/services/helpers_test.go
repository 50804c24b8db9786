package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/mock"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var testRules = models.ProcessingRules{
	RemoveExtraWhitespace: true,
	TargetTokens:          5,
	MaxFragmentLen:        1000,
}

var testLimits = UploadLimits{
	MaxDocuments:     3,
	MaxFileSize:      1 << 10,
	AllowedMimeTypes: []string{"text/plain", "text/markdown"},
}

type testEnv struct {
	db       *mock.MemoryDb
	objects  *mock.MemoryObjectClient
	index    *mock.MemoryVectorIndex
	embedder *mock.MockEmbedder
	pipeline *ingestion_engine.Pipeline
	versions *VersionService
	docs     *DocumentService
	batches  *BatchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       mock.NewMemoryDb(),
		objects:  mock.NewMemoryObjectClient(),
		index:    mock.NewMemoryVectorIndex(),
		embedder: mock.NewMockEmbedder(4),
	}
	gen := embedding.NewGenerator(env.embedder, embedding.NewCache(env.db, 100), nil, 8)
	env.pipeline = ingestion_engine.NewPipeline(ingestion_engine.PipelineDeps{
		DB:        env.db,
		Objects:   env.objects,
		Index:     env.index,
		Extractor: ingestion_engine.NewDocconvExtractor(false),
		Embedder:  gen,
	}, testRules, time.Minute)

	env.versions = NewVersionService(env.db, env.objects, env.pipeline)
	env.docs = NewDocumentService(env.db, env.objects, env.index, env.pipeline, env.versions, testLimits, testRules)

	var err error
	env.batches, err = NewBatchService(env.db, env.objects, env.pipeline, testLimits, testRules, 2, time.Minute)
	require.NoError(t, err)
	t.Cleanup(env.batches.Close)
	return env
}

func textFile(name string, lines ...string) FileUpload {
	return FileUpload{FileName: name, ContentType: "text/plain", Data: []byte(strings.Join(lines, "\n"))}
}

func (e *testEnv) uploadAndProcess(t *testing.T, userID string, f FileUpload) *models.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := e.docs.Upload(ctx, userID, f)
	require.NoError(t, err)
	require.NoError(t, e.docs.Process(ctx, userID, doc.ID))
	return e.document(t, doc.ID)
}

func (e *testEnv) document(t *testing.T, id string) *models.Document {
	t.Helper()
	doc, err := e.db.GetDocumentByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func (e *testEnv) requireConsistent(t *testing.T, documentID string) int {
	t.Helper()
	ctx := context.Background()
	rows, err := e.db.CountChunksByDocument(ctx, documentID)
	require.NoError(t, err)
	points, err := e.index.CountForDocument(ctx, documentID)
	require.NoError(t, err)
	require.Equal(t, rows, points, "chunk rows and vector points diverged")
	return rows
}
