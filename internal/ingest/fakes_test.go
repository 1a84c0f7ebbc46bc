package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// fakeDB is an in-memory DbClient for pipeline and batch tests. Only the
// document and chunk operations carry behavior; user operations exist to
// satisfy the interface.
type fakeDB struct {
	mu sync.Mutex

	docs   map[string]*models.Document
	chunks []models.DocumentChunk

	deleteCalls int
	claimCalls  int
	staleCalls  int

	insertErr error
	statusErr error
}

func newFakeDB(docs ...*models.Document) *fakeDB {
	f := &fakeDB{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDB) CreateUser(ctx context.Context, user *models.User) error { return nil }
func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, errors.New("no such user")
}

func (f *fakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDB) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDB) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	if d, ok := f.docs[id]; ok {
		d.Status = status
	}
	return nil
}

func (f *fakeDB) ClaimDocumentProcessing(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	d, ok := f.docs[id]
	if !ok || d.Status == models.StatusProcessing {
		return false, nil
	}
	d.Status = models.StatusProcessing
	return true, nil
}

func (f *fakeDB) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls++
	return 0, nil
}

func (f *fakeDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDB) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	kept := f.chunks[:0]
	for _, ch := range f.chunks {
		if ch.DocumentID != documentID {
			kept = append(kept, ch)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range f.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeDB) SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	return nil, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id].Status
}

func (f *fakeDB) storedChunks() []models.DocumentChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.DocumentChunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

// fakeStore serves one blob regardless of bucket and key.
type fakeStore struct {
	data []byte
	err  error
}

func (f *fakeStore) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStore) DeleteFile(ctx context.Context, bucket, key string) error { return nil }

func (f *fakeStore) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

// fakeEmbedder returns fixed-dimension vectors and can be told to fail the
// first failFirst calls, to exercise retry behavior.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	failAll   bool
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.failAll || n <= f.failFirst {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3, 4}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
