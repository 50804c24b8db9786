package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	lineA  = "Alpha paragraph one."
	lineB  = "Bravo paragraph two."
	lineB2 = "Bravo paragraph TWO."
	lineC  = "Charlie paragraph 3."
)

func TestUpload_CreatesPendingDocument(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.docs.Upload(context.Background(), "u1", textFile("notes.txt", lineA))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, doc.Status)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, objectclient.DocumentKey("u1", doc.ID, "notes.txt"), doc.StorageKey)
	assert.True(t, env.objects.Has(doc.StorageKey))
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name string
		file FileUpload
	}{
		{"empty", FileUpload{FileName: "a.txt", ContentType: "text/plain"}},
		{"too large", FileUpload{FileName: "a.txt", ContentType: "text/plain", Data: make([]byte, 2<<10)}},
		{"type not allowed", FileUpload{FileName: "a.pdf", ContentType: "application/pdf", Data: []byte("x")}},
		{"no name", FileUpload{ContentType: "text/plain", Data: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.docs.Upload(context.Background(), "u1", tt.file)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrValidation))
			assert.Zero(t, env.objects.Len(), "nothing stored on rejection")
		})
	}
}

func TestUpload_InfersTypeFromExtension(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.docs.Upload(context.Background(), "u1", FileUpload{FileName: "readme.txt", Data: []byte(lineA)})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", doc.ContentType)
}

func TestUpload_DocumentLimitAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.docs.Upload(ctx, "u1", textFile("a.txt", lineA))
	require.NoError(t, err)

	_, err = env.docs.Upload(ctx, "u1", textFile("a.txt", lineB))
	assert.True(t, errors.Is(err, core.ErrValidation), "duplicate name")

	_, err = env.docs.Upload(ctx, "u1", textFile("b.txt", lineB))
	require.NoError(t, err)
	_, err = env.docs.Upload(ctx, "u1", textFile("c.txt", lineC))
	require.NoError(t, err)

	_, err = env.docs.Upload(ctx, "u1", textFile("d.txt", lineC))
	assert.True(t, errors.Is(err, core.ErrValidation), "over the document limit")

	_, err = env.docs.Upload(ctx, "u2", textFile("a.txt", lineA))
	assert.NoError(t, err, "limits are per user")
}

func TestUpload_DuplicateNameIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.docs.Upload(ctx, "u1", textFile("Notes.txt", lineA))
	require.NoError(t, err)

	_, err = env.docs.Upload(ctx, "u1", textFile("notes.TXT", lineB))
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestUpload_StorageFailureRemovesRow(t *testing.T) {
	env := newTestEnv(t)
	env.objects.UploadErr = errors.New("bucket unavailable")

	_, err := env.docs.Upload(context.Background(), "u1", textFile("a.txt", lineA))
	require.Error(t, err)

	docs, err := env.docs.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpdate_UnchangedContentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA, lineB))
	calls := env.embedder.CallCount()

	changed, err := env.docs.Update(context.Background(), "u1", doc.ID, []byte(lineA+"\n"+lineB), "")
	require.NoError(t, err)

	assert.False(t, changed)
	got := env.document(t, doc.ID)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, calls, env.embedder.CallCount())
}

func TestUpdate_ArchivesAndReindexes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA, lineB, lineC))
	env.embedder.Reset()

	changed, err := env.docs.Update(ctx, "u1", doc.ID, []byte(lineA+"\n"+lineB2+"\n"+lineC), "fix typo")
	require.NoError(t, err)
	assert.True(t, changed)

	got := env.document(t, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 3, env.requireConsistent(t, doc.ID))
	assert.Equal(t, []string{lineB2}, env.embedder.EmbeddedTexts(), "only the edited chunk is embedded")

	versions, err := env.versions.GetVersions(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, 3, versions[0].ChunkCount)
	assert.Equal(t, "fix typo", versions[0].ChangeSummary)
	assert.True(t, env.objects.Has(versions[0].FilePath))
}

// queuedDispatcher records jobs without running them, like the async ingestor
// before a worker picks them up.
type queuedDispatcher struct {
	mu   sync.Mutex
	jobs []ingestion_engine.Job
}

func (d *queuedDispatcher) Dispatch(ctx context.Context, job ingestion_engine.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *queuedDispatcher) Jobs() []ingestion_engine.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ingestion_engine.Job(nil), d.jobs...)
}

func TestUpdate_RepeatedWhileQueuedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA, lineB))

	queue := &queuedDispatcher{}
	versions := NewVersionService(env.db, env.objects, queue)
	docs := NewDocumentService(env.db, env.objects, env.index, queue, versions, testLimits, testRules)

	next := []byte(lineA + "\n" + lineC)
	changed, err := docs.Update(ctx, "u1", doc.ID, next, "first")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = docs.Update(ctx, "u1", doc.ID, next, "again")
	require.NoError(t, err)
	assert.False(t, changed, "same bytes as the live file")

	jobs := queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, ingestion_engine.ModeReindex, jobs[0].Mode)
	assert.Equal(t, 2, env.document(t, doc.ID).Version)

	list, err := versions.GetVersions(ctx, "u1", doc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdate_StorageFailureLeavesVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA))
	env.objects.UploadErr = errors.New("bucket unavailable")

	changed, err := env.docs.Update(ctx, "u1", doc.ID, []byte(lineB), "")
	require.Error(t, err)
	assert.False(t, changed)

	got := env.document(t, doc.ID)
	assert.Equal(t, 1, got.Version)
	live, err := env.objects.GetFile(ctx, got.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, lineA, string(live))
	versions, err := env.versions.GetVersions(ctx, "u1", doc.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestUpdate_ArchiveFailureRestoresLiveFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA))
	env.db.ArchiveErr = errors.New("db down")

	_, err := env.docs.Update(ctx, "u1", doc.ID, []byte(lineB), "")
	require.Error(t, err)

	got := env.document(t, doc.ID)
	assert.Equal(t, 1, got.Version)
	live, err := env.objects.GetFile(ctx, got.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, lineA, string(live))
	assert.False(t, env.objects.Has(objectclient.VersionKey("u1", doc.ID, 1, "a.txt")), "archived copy removed")
}

func TestUpdate_RejectedWhileProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc, err := env.docs.Upload(ctx, "u1", textFile("a.txt", lineA))
	require.NoError(t, err)
	require.NoError(t, env.db.MarkDocumentProcessing(ctx, doc.ID))

	_, err = env.docs.Update(ctx, "u1", doc.ID, []byte(lineB), "")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestGet_ScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	doc, err := env.docs.Upload(context.Background(), "u1", textFile("a.txt", lineA))
	require.NoError(t, err)

	_, err = env.docs.Get(context.Background(), "u2", doc.ID)
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
}

func TestDelete_RemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA, lineB))
	_, err := env.docs.Update(ctx, "u1", doc.ID, []byte(lineA+"\n"+lineC), "")
	require.NoError(t, err)

	require.NoError(t, env.docs.Delete(ctx, "u1", doc.ID))

	_, err = env.docs.Get(ctx, "u1", doc.ID)
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
	n, err := env.index.CountForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.objects.Len())
}

func TestDelete_VectorFailureKeepsRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.uploadAndProcess(t, "u1", textFile("a.txt", lineA))
	env.index.DeleteByDocumentErr = errors.New("index down")

	err := env.docs.Delete(ctx, "u1", doc.ID)
	assert.True(t, errors.Is(err, core.ErrVectorIndexWrite))
	env.document(t, doc.ID)
}

func TestEmbeddingCacheSharedAcrossDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.uploadAndProcess(t, "u1", textFile("a.txt", lineA, lineB))
	env.embedder.Reset()

	env.uploadAndProcess(t, "u2", textFile("b.txt", lineA, lineB, lineC))

	assert.Equal(t, []string{lineC}, env.embedder.EmbeddedTexts())
}
