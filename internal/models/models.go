package models

import (
	"time"
)

// Document status values. The ingestion pipeline is the only writer of this
// field and only ever moves it forward: pending -> processing -> completed|failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded file awaiting or finished with ingestion.
// The row is created by the upload path with status "pending"; the pipeline
// only transitions it.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	ProjectID   string    `db:"project_id" json:"project_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one embedded text chunk from a document.
// Chunks are written once during ingestion and never updated; they are
// cascade-deleted with their document.
type DocumentChunk struct {
	ID           string    `db:"id" json:"id"`
	DocumentID   string    `db:"document_id" json:"document_id"`
	ChunkIndex   int       `db:"chunk_index" json:"chunk_index"`
	Content      string    `db:"content" json:"content"`
	Context      string    `db:"context" json:"context"` // retrieval label: doc name, classification, structural hint
	Embedding    []float32 `db:"embedding" json:"embedding"` // pgvector column
	TokenCount   int       `db:"token_count" json:"token_count"`
	BoundaryType string    `db:"boundary_type" json:"boundary_type"`
	ContentType  string    `db:"content_type" json:"content_type"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
