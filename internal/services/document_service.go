package services

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// DocumentService owns the upload path: blob to object storage, metadata row
// to the database. It only ever creates documents in "pending"; every later
// status transition belongs to the ingestion pipeline.
type DocumentService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, bucket: bucket}
}

type UploadInput struct {
	UserID      string
	ProjectID   string
	FileName    string
	ContentType string
	SizeBytes   int64
	SourceType  string // "upload" or "url"
	Data        io.Reader
}

func (s *DocumentService) UploadAndCreate(ctx context.Context, in UploadInput) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(in.UserID, docID, in.FileName)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, in.Data, in.ContentType)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := &models.Document{
		ID:          docID,
		UserID:      in.UserID,
		ProjectID:   in.ProjectID,
		FileName:    in.FileName,
		StorageURL:  url,
		SourceType:  in.SourceType,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		// The blob is orphaned if this fails; best effort cleanup.
		_ = s.storage.DeleteFile(ctx, s.bucket, key)
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	return s.db.ListDocumentsByUser(ctx, userID)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(userID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
