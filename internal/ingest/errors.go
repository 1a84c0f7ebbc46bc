package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes of an ingestion run. Callers match
// them with errors.Is; the pipeline wraps each in a StageError so the failing
// step survives propagation.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrAlreadyProcessing    = errors.New("document is already being processed")
	ErrUnsupportedFormat    = errors.New("unsupported document format")
	ErrExtractionFailed     = errors.New("text extraction failed")
	ErrEmptyContent         = errors.New("document contains no extractable text")
	ErrChunkTooLarge        = errors.New("chunk exceeds the configured token ceiling")
	ErrEmbeddingBatchFailed = errors.New("embedding batch failed after retries")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageClaim    Stage = "claim"
	StageReset    Stage = "reset"
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageFinalize Stage = "finalize"
)

// StageError ties a failure to the pipeline stage that produced it so the
// caller can report which step failed without parsing messages.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error {
	return &StageError{Stage: s, Err: err}
}

// FailedStage extracts the stage from an ingestion error, or "" if the error
// did not come from the pipeline.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
