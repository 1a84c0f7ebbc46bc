package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func pendingDoc() *models.Document {
	return &models.Document{
		ID:          "d1",
		UserID:      "u1",
		ProjectID:   "p1",
		FileName:    "notes.txt",
		StorageURL:  "https://bkt.s3.us-east-2.amazonaws.com/users/u1/documents/d1/notes.txt",
		ContentType: "text/plain",
		Status:      models.StatusPending,
	}
}

func newTestPipeline(db *fakeDB, store *fakeStore, emb *fakeEmbedder) *Pipeline {
	return NewPipeline(db, store, emb, BatchOptions{RetryAttempts: 2, RetryBase: time.Millisecond})
}

func TestRunHappyPath(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte(strings.Repeat(sampleProse, 5))}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	res, err := p.Run(context.Background(), "d1", "p1")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, models.StatusCompleted, db.status("d1"))
	assert.Equal(t, len(store.data), res.TextLength)
	assert.Equal(t, ContentNaturalLanguage, res.ContentType)
	assert.Equal(t, "small-accuracy", res.Strategy)
	assert.Greater(t, res.ChunksCreated, 0)
	assert.GreaterOrEqual(t, res.ProcessingTimeMs, int64(0))

	rows := db.storedChunks()
	assert.Len(t, rows, res.ChunksCreated)
}

func TestRunUnknownDocument(t *testing.T) {
	db := newFakeDB(pendingDoc())
	p := newTestPipeline(db, &fakeStore{}, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "missing", "p1")
	require.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, StageFetch, FailedStage(err))
}

func TestRunWrongProject(t *testing.T) {
	db := newFakeDB(pendingDoc())
	p := newTestPipeline(db, &fakeStore{}, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "d1", "someone-elses-project")
	require.ErrorIs(t, err, ErrDocumentNotFound)
	// Authorization failures never touch the state machine.
	assert.Equal(t, models.StatusPending, db.status("d1"))
}

func TestRunClaimConflict(t *testing.T) {
	doc := pendingDoc()
	doc.Status = models.StatusProcessing
	db := newFakeDB(doc)
	p := newTestPipeline(db, &fakeStore{}, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "d1", "p1")
	require.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.Equal(t, StageClaim, FailedStage(err))
	// The other run still owns the claim; this run must not fail the document.
	assert.Equal(t, models.StatusProcessing, db.status("d1"))
}

func TestRunEmptyContent(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte("   \n\t  \n")}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "d1", "p1")
	require.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, StageValidate, FailedStage(err))
	assert.Equal(t, models.StatusFailed, db.status("d1"))
}

func TestRunUnsupportedFormat(t *testing.T) {
	doc := pendingDoc()
	doc.ContentType = "image/png"
	db := newFakeDB(doc)
	store := &fakeStore{data: []byte{0x89, 0x50}}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "d1", "p1")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, StageExtract, FailedStage(err))
	assert.Equal(t, models.StatusFailed, db.status("d1"))
}

func TestRunDownloadFailure(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{err: errors.New("object not found")}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	_, err := p.Run(context.Background(), "d1", "p1")
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, StageDownload, FailedStage(err))
	assert.Equal(t, models.StatusFailed, db.status("d1"))
}

func TestRunEmbedFailureMarksFailed(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte(strings.Repeat(sampleProse, 5))}
	p := newTestPipeline(db, store, &fakeEmbedder{failAll: true})

	_, err := p.Run(context.Background(), "d1", "p1")
	require.ErrorIs(t, err, ErrEmbeddingBatchFailed)
	assert.Equal(t, StageEmbed, FailedStage(err))
	assert.Equal(t, models.StatusFailed, db.status("d1"))
}

func TestRunClearsChunksFromPreviousRun(t *testing.T) {
	db := newFakeDB(pendingDoc())
	db.chunks = append(db.chunks, models.DocumentChunk{
		ID: "stale", DocumentID: "d1", ChunkIndex: 0, Content: "stale leftover",
	})
	store := &fakeStore{data: []byte(strings.Repeat(sampleProse, 5))}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	res, err := p.Run(context.Background(), "d1", "p1")
	require.NoError(t, err)

	rows := db.storedChunks()
	assert.Len(t, rows, res.ChunksCreated)
	for _, row := range rows {
		assert.NotEqual(t, "stale", row.ID)
	}
	assert.GreaterOrEqual(t, db.deleteCalls, 1)
}

func TestRunIsRepeatable(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte(strings.Repeat(sampleProse, 5))}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	first, err := p.Run(context.Background(), "d1", "p1")
	require.NoError(t, err)
	second, err := p.Run(context.Background(), "d1", "p1")
	require.NoError(t, err)

	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)
	assert.Len(t, db.storedChunks(), second.ChunksCreated, "re-runs must not accumulate chunks")
	assert.Equal(t, models.StatusCompleted, db.status("d1"))
}

func TestRunStreamEmitsLifecycle(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte(strings.Repeat(sampleProse, 5))}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	var mu sync.Mutex
	var events []ProgressEvent
	_, err := p.RunStream(context.Background(), "d1", "p1", func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "start", events[0].Type)

	last := events[len(events)-1]
	assert.Equal(t, "complete", last.Type)
	require.NotNil(t, last.Result)
	assert.Greater(t, last.Result.ChunksCreated, 0)
}

func TestRunStreamEmitsErrorEvent(t *testing.T) {
	db := newFakeDB(pendingDoc())
	store := &fakeStore{data: []byte("  ")}
	p := newTestPipeline(db, store, &fakeEmbedder{})

	var mu sync.Mutex
	var events []ProgressEvent
	_, err := p.RunStream(context.Background(), "d1", "p1", func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.ErrorIs(t, err, ErrEmptyContent)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, string(StageValidate), last.Stage)
}

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		url    string
		bucket string
		key    string
	}{
		{"https://bkt.s3.us-east-2.amazonaws.com/users/u1/documents/d1/a.pdf", "bkt", "users/u1/documents/d1/a.pdf"},
		{"https://my-bucket.s3.amazonaws.com/k", "my-bucket", "k"},
		{"https://bkt.s3.us-east-2.amazonaws.com/", "bkt", ""},
	}
	for _, tc := range cases {
		bucket, key := parseS3URL(tc.url)
		assert.Equal(t, tc.bucket, bucket, tc.url)
		assert.Equal(t, tc.key, key, tc.url)
	}
}
