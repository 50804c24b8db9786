package ingestion_engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core/embedding"
	"github.com/markdave123-py/contexta-ingest/internal/core/mock"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// One 20-character line is five tokens, so with these rules every line is its own chunk.
var lineRules = models.ProcessingRules{
	RemoveExtraWhitespace: true,
	TargetTokens:          5,
	OverlapTokens:         0,
	MaxFragmentLen:        1000,
}

type testEnv struct {
	db       *mock.MemoryDb
	index    *mock.MemoryVectorIndex
	objects  *mock.MemoryObjectClient
	embedder *mock.MockEmbedder
	pipeline *Pipeline
}

func newTestEnv(t *testing.T, timeout time.Duration) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       mock.NewMemoryDb(),
		index:    mock.NewMemoryVectorIndex(),
		objects:  mock.NewMemoryObjectClient(),
		embedder: mock.NewMockEmbedder(4),
	}
	gen := embedding.NewGenerator(env.embedder, embedding.NewCache(env.db, 100), nil, 8)
	env.pipeline = NewPipeline(PipelineDeps{
		DB:        env.db,
		Objects:   env.objects,
		Index:     env.index,
		Extractor: NewDocconvExtractor(false),
		Embedder:  gen,
	}, lineRules, timeout)
	return env
}

func (e *testEnv) addDocument(t *testing.T, userID, content string) *models.Document {
	t.Helper()
	ctx := context.Background()
	space, err := e.db.GetOrCreateSpace(ctx, userID, lineRules)
	require.NoError(t, err)

	id := uuid.NewString()
	doc := &models.Document{
		ID:          id,
		UserID:      userID,
		SpaceID:     space.ID,
		FileName:    id + ".txt",
		StorageKey:  "users/" + userID + "/documents/" + id + "/file.txt",
		ContentType: "text/plain",
		Status:      models.StatusPending,
		Version:     1,
	}
	require.NoError(t, e.db.CreateDocument(ctx, doc))
	e.putFile(t, doc, content)
	return doc
}

func (e *testEnv) putFile(t *testing.T, doc *models.Document, content string) {
	t.Helper()
	_, err := e.objects.UploadFile(context.Background(), doc.StorageKey, []byte(content), doc.ContentType)
	require.NoError(t, err)
}

func (e *testEnv) document(t *testing.T, id string) *models.Document {
	t.Helper()
	doc, err := e.db.GetDocumentByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

// requireConsistent checks that relational rows and vector points agree.
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
