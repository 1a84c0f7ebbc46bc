package ingest

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// BatchOptions tunes retry and pacing behavior of the batch processor.
// Zero values select the defaults.
type BatchOptions struct {
	RetryAttempts  int           // per-batch attempts before the run fails (default 3)
	RetryBase      time.Duration // backoff base, doubled per attempt (default 1s)
	RateLimit      float64       // embed calls per second, 0 disables pacing
	HardTokenLimit int           // embedding model input ceiling (default 2048)
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.HardTokenLimit <= 0 {
		o.HardTokenLimit = 2048
	}
	return o
}

// BatchProcessor embeds chunks and persists them, in parallel batches with
// retries. Indices were assigned by the chunker before dispatch, so stored
// order is correct no matter which batch finishes first.
type BatchProcessor struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	limiter  *rate.Limiter
	opts     BatchOptions
}

func NewBatchProcessor(db core.DbClient, embedder core.EmbeddingProvider, opts BatchOptions) *BatchProcessor {
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &BatchProcessor{db: db, embedder: embedder, limiter: limiter, opts: opts}
}

// ProcessAll partitions chunks into batches of cfg.BatchSize, runs groups of
// cfg.MaxParallelBatches batches concurrently, and pauses adaptively between
// groups. It returns the number of chunks durably persisted; on error the
// caller must treat the whole run as failed.
//
// onProgress, when non-nil, is called after every persisted batch and may be
// called from concurrent goroutines.
func (p *BatchProcessor) ProcessAll(
	ctx context.Context,
	doc *models.Document,
	chunks []Chunk,
	cfg ProcessingConfig,
	onProgress func(done, total int),
) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}
	width := cfg.MaxParallelBatches
	if width <= 0 {
		width = 1
	}

	var batches [][]Chunk
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[i:end])
	}

	total := len(chunks)
	var done atomic.Int64
	start := time.Now()

	for g := 0; g < len(batches); g += width {
		end := g + width
		if end > len(batches) {
			end = len(batches)
		}

		eg, gctx := errgroup.WithContext(ctx)
		for _, batch := range batches[g:end] {
			batch := batch
			eg.Go(func() error {
				if err := p.processBatch(gctx, doc, batch); err != nil {
					return err
				}
				n := done.Add(int64(len(batch)))
				if onProgress != nil {
					onProgress(int(n), total)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return int(done.Load()), err
		}

		if end < len(batches) {
			p.pause(ctx, cfg, done.Load(), time.Since(start))
		}
	}

	return total, nil
}

// processBatch runs one batch to durability, retrying the whole batch with
// exponential backoff. Transient provider errors are absorbed here; only an
// exhausted retry ceiling escalates.
func (p *BatchProcessor) processBatch(ctx context.Context, doc *models.Document, batch []Chunk) error {
	var lastErr error
	for attempt := 1; attempt <= p.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			backoff := p.opts.RetryBase << (attempt - 2)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = p.tryBatch(ctx, doc, batch)
		if lastErr == nil {
			return nil
		}
		log.Printf("ingest: batch attempt %d/%d failed for document %s: %v",
			attempt, p.opts.RetryAttempts, doc.ID, lastErr)
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingBatchFailed, lastErr)
}

func (p *BatchProcessor) tryBatch(ctx context.Context, doc *models.Document, batch []Chunk) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}

	vecs, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
	}

	rows := make([]models.DocumentChunk, len(batch))
	for i := range batch {
		rows[i] = models.DocumentChunk{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			ChunkIndex:   batch[i].Index,
			Content:      batch[i].Content,
			Context:      batch[i].Context,
			Embedding:    vecs[i],
			TokenCount:   batch[i].Tokens,
			BoundaryType: string(batch[i].Boundary),
			ContentType:  string(batch[i].ContentType),
			CreatedAt:    time.Now(),
		}
	}
	if err := p.db.InsertDocumentChunks(ctx, rows); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

// pause applies the configured inter-group delay, shrinking it as observed
// throughput rises. The pipeline deliberately self-throttles instead of
// leaning on provider-side 429 handling alone.
func (p *BatchProcessor) pause(ctx context.Context, cfg ProcessingConfig, done int64, elapsed time.Duration) {
	delay := cfg.BatchDelay
	if delay <= 0 {
		return
	}
	if secs := elapsed.Seconds(); secs > 0 {
		throughput := float64(done) / secs // chunks per second
		switch {
		case throughput >= 40:
			delay /= 4
		case throughput >= 20:
			delay /= 2
		case throughput >= 10:
			delay = delay * 3 / 4
		}
	}
	_ = sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
