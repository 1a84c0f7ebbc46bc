package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Result is the summary returned to the trigger surface after a successful
// run.
type Result struct {
	ChunksCreated    int         `json:"chunksCreated"`
	TextLength       int         `json:"textLength"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
	Strategy         string      `json:"strategy"`
	ContentType      ContentType `json:"contentType"`
	Confidence       float64     `json:"confidence"`
}

// ProgressEvent is one newline-delimited event of the streaming trigger
// variant.
type ProgressEvent struct {
	Type        string  `json:"type"` // start | progress | warning | error | complete
	Stage       string  `json:"stage,omitempty"`
	Message     string  `json:"message,omitempty"`
	ChunksDone  int     `json:"chunksDone,omitempty"`
	ChunksTotal int     `json:"chunksTotal,omitempty"`
	Result      *Result `json:"result,omitempty"`
}

// Pipeline is the ingestion orchestrator: it owns the document status state
// machine (pending -> processing -> completed|failed) and drives extraction,
// classification, chunking, and embedding in order. All collaborators are
// injected; the pipeline holds no global state.
type Pipeline struct {
	db        core.DbClient
	store     core.ObjectClient
	extractor *Extractor
	batch     *BatchProcessor
	hardLimit int
}

func NewPipeline(db core.DbClient, store core.ObjectClient, embedder core.EmbeddingProvider, opts BatchOptions) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		db:        db,
		store:     store,
		extractor: NewExtractor(),
		batch:     NewBatchProcessor(db, embedder, opts),
		hardLimit: opts.HardTokenLimit,
	}
}

// Run executes one ingestion run and returns its summary. Any failure marks
// the document failed and is returned as a StageError.
func (p *Pipeline) Run(ctx context.Context, documentID, projectID string) (*Result, error) {
	return p.run(ctx, documentID, projectID, func(ProgressEvent) {})
}

// RunStream is Run with progress events. emit may be called from concurrent
// goroutines during the embedding stage.
func (p *Pipeline) RunStream(ctx context.Context, documentID, projectID string, emit func(ProgressEvent)) (*Result, error) {
	return p.run(ctx, documentID, projectID, emit)
}

func (p *Pipeline) run(ctx context.Context, documentID, projectID string, emit func(ProgressEvent)) (res *Result, err error) {
	started := time.Now()

	doc, err := p.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}
	if doc == nil || doc.ProjectID != projectID {
		// Not found and not authorized are indistinguishable on purpose.
		return nil, stageErr(StageFetch, ErrDocumentNotFound)
	}

	claimed, err := p.db.ClaimDocumentProcessing(ctx, doc.ID)
	if err != nil {
		return nil, stageErr(StageClaim, err)
	}
	if !claimed {
		return nil, stageErr(StageClaim, ErrAlreadyProcessing)
	}

	// The document is now "processing". No exit path below may leave it
	// there, including panics inside the embedding stage.
	defer func() {
		if r := recover(); r != nil {
			err = stageErr(StageEmbed, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			p.markFailed(doc.ID, err)
			emit(ProgressEvent{Type: "error", Stage: string(FailedStage(err)), Message: err.Error()})
		}
	}()

	emit(ProgressEvent{Type: "start", Message: doc.FileName})

	// Re-run semantics: a previous run (failed or complete) may have left
	// chunks behind; clear them so indices never collide.
	if err := p.db.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return nil, stageErr(StageReset, err)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := p.store.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, stageErr(StageDownload, fmt.Errorf("%w: %v", ErrExtractionFailed, err))
	}

	text, err := p.extractor.Extract(data, doc.ContentType)
	if err != nil {
		return nil, stageErr(StageExtract, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, stageErr(StageValidate, ErrEmptyContent)
	}

	cls := Analyze(text)
	cfg := DeriveConfig(len(text), cls.Type)
	if cfg.MaxChunkTokens > p.hardLimit {
		cfg.MaxChunkTokens = p.hardLimit
	}
	log.Printf("ingest: document %s classified %s (%.2f), %d chars, strategy %s",
		doc.ID, cls.Type, cls.Confidence, len(text), cfg.Strategy)
	emit(ProgressEvent{Type: "progress", Stage: "classify",
		Message: fmt.Sprintf("%s (confidence %.2f)", cls.Type, cls.Confidence)})

	est := NewEstimator(cls.Type)
	if !est.Exact() {
		emit(ProgressEvent{Type: "warning", Stage: "chunk",
			Message: "exact tokenizer unavailable, using heuristic estimates"})
	}
	chunks, err := NewChunker(doc.FileName, cfg, cls, est).Chunk(text)
	if err != nil {
		return nil, stageErr(StageChunk, err)
	}
	if len(chunks) == 0 {
		return nil, stageErr(StageChunk, ErrEmptyContent)
	}

	// Fail fast before any embedding call: an oversized chunk here is an
	// internal defect, not something to hand to the API.
	for _, ch := range chunks {
		if ch.Tokens > cfg.MaxChunkTokens {
			return nil, stageErr(StageChunk,
				fmt.Errorf("%w: chunk %d estimated at %d tokens (ceiling %d)",
					ErrChunkTooLarge, ch.Index, ch.Tokens, cfg.MaxChunkTokens))
		}
	}
	emit(ProgressEvent{Type: "progress", Stage: "chunk", ChunksTotal: len(chunks)})

	n, err := p.batch.ProcessAll(ctx, doc, chunks, cfg, func(done, total int) {
		emit(ProgressEvent{Type: "progress", Stage: "embed", ChunksDone: done, ChunksTotal: total})
	})
	if err != nil {
		return nil, stageErr(StageEmbed, err)
	}

	if err := p.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusCompleted); err != nil {
		return nil, stageErr(StageFinalize, err)
	}

	res = &Result{
		ChunksCreated:    n,
		TextLength:       len(text),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Strategy:         cfg.Strategy,
		ContentType:      cls.Type,
		Confidence:       cls.Confidence,
	}
	emit(ProgressEvent{Type: "complete", Result: res})
	return res, nil
}

// markFailed is best-effort: a failing status write is logged, never allowed
// to mask the primary error.
func (p *Pipeline) markFailed(docID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.db.UpdateDocumentStatus(ctx, docID, models.StatusFailed); err != nil {
		log.Printf("ingest: could not mark document %s failed (run error: %v): %v", docID, cause, err)
	}
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
