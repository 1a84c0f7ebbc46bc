package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/contexta-ingest/internal/ingest"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

const maxUploadBytes = 52 << 20 // 52 MB

type DocumentHandler struct {
	docs     *services.DocumentService
	pipeline *ingest.Pipeline
}

func NewDocumentHandler(docs *services.DocumentService, pipeline *ingest.Pipeline) *DocumentHandler {
	return &DocumentHandler{docs: docs, pipeline: pipeline}
}

// UploadDocument stores the blob and creates a pending document row. It never
// starts processing; that is the job of the process endpoints.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	projectID := r.FormValue("project_id")
	if projectID == "" {
		projectID = userID
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadCtx, services.UploadInput{
		UserID:      userID,
		ProjectID:   projectID,
		FileName:    filepath.Base(header.Filename), // strips any path components
		ContentType: contentType,
		SizeBytes:   header.Size,
		SourceType:  "upload",
		Data:        file,
	})
	if err != nil {
		log.Printf("upload failed for user %s: %v", userID, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// ProcessDocument runs the ingestion pipeline to completion and returns the
// run summary as one JSON object.
func (h *DocumentHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizeDocument(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.Run(r.Context(), doc.ID, doc.ProjectID)
	if err != nil {
		writeStageError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ProcessDocumentStream runs the pipeline while emitting NDJSON progress
// events. The embedding stage reports from concurrent goroutines, so the
// encoder is guarded by a mutex.
func (h *DocumentHandler) ProcessDocumentStream(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.authorizeDocument(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	emit := func(ev ingest.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Errors are delivered in-stream as an "error" event; the HTTP status is
	// already 200 by the time they can occur.
	_, _ = h.pipeline.RunStream(r.Context(), doc.ID, doc.ProjectID, emit)
}

// authorizeDocument resolves {id} and checks the caller owns it. Writes the
// error response itself when authorization fails.
func (h *DocumentHandler) authorizeDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return nil, false
	}

	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil || doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}

// writeStageError maps pipeline sentinel errors to HTTP statuses and reports
// the failing stage so clients can tell a bad upload from a provider outage.
func writeStageError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingest.ErrAlreadyProcessing):
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrEmptyContent):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrEmbeddingBatchFailed):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"stage": string(ingest.FailedStage(err)),
	})
}
