package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// DbClient defines all persistence operations the services and the ingestion
// pipeline need. It abstracts Postgres/pgvector so higher layers never depend
// on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// ClaimDocumentProcessing flips a document to "processing" only if it is
	// not already processing. Returns false when another run holds the claim.
	ClaimDocumentProcessing(ctx context.Context, id string) (bool, error)

	// FailStaleProcessing marks documents stuck in "processing" for longer
	// than olderThan as failed, returning how many rows it touched.
	FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, limit int) ([]models.DocumentChunk, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
