package ingest

import "time"

// ProcessingConfig tunes one ingestion run. Derived once per document from
// text length and content type, then immutable for the run.
type ProcessingConfig struct {
	MaxChunkTokens     int
	OverlapTokens      int
	BatchSize          int
	MaxParallelBatches int
	BatchDelay         time.Duration
	Strategy           string
}

// Size tier thresholds in characters of extracted text.
const (
	tierSmallMax  = 50_000
	tierMediumMax = 750_000
	tierLargeMax  = 2_000_000
)

// DeriveConfig picks pipeline parameters for a document. Small documents
// favor chunk quality (small chunks, gentle pacing); the bigger the input,
// the more the config trades per-chunk fidelity for throughput, because
// embedding-API latency and rate limits dominate wall-clock time on large
// documents.
func DeriveConfig(textLen int, contentType ContentType) ProcessingConfig {
	var cfg ProcessingConfig
	switch {
	case textLen < tierSmallMax:
		cfg = ProcessingConfig{
			MaxChunkTokens:     220,
			OverlapTokens:      40,
			BatchSize:          8,
			MaxParallelBatches: 1,
			BatchDelay:         500 * time.Millisecond,
			Strategy:           "small-accuracy",
		}
	case textLen < tierMediumMax:
		cfg = ProcessingConfig{
			MaxChunkTokens:     400,
			OverlapTokens:      60,
			BatchSize:          16,
			MaxParallelBatches: 2,
			BatchDelay:         250 * time.Millisecond,
			Strategy:           "medium-balanced",
		}
	case textLen < tierLargeMax:
		cfg = ProcessingConfig{
			MaxChunkTokens:     600,
			OverlapTokens:      80,
			BatchSize:          32,
			MaxParallelBatches: 4,
			BatchDelay:         100 * time.Millisecond,
			Strategy:           "large-throughput",
		}
	default:
		cfg = ProcessingConfig{
			MaxChunkTokens:     800,
			OverlapTokens:      100,
			BatchSize:          48,
			MaxParallelBatches: 6,
			BatchDelay:         50 * time.Millisecond,
			Strategy:           "xlarge-parallel",
		}
	}

	// Code tokenizes denser than prose; shrink the chunk budget a little so
	// chunks stay comparable in semantic size.
	if contentType == ContentCode {
		cfg.MaxChunkTokens = cfg.MaxChunkTokens * 85 / 100
		cfg.OverlapTokens = cfg.OverlapTokens * 85 / 100
	}

	return cfg
}
