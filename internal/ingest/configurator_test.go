package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveConfigTiers(t *testing.T) {
	cases := []struct {
		name     string
		textLen  int
		strategy string
	}{
		{"tiny", 1_000, "small-accuracy"},
		{"just under small cap", 49_999, "small-accuracy"},
		{"medium", 600_000, "medium-balanced"},
		{"large", 1_500_000, "large-throughput"},
		{"very large", 3_000_000, "xlarge-parallel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DeriveConfig(tc.textLen, ContentNaturalLanguage)
			assert.Equal(t, tc.strategy, cfg.Strategy)
		})
	}
}

func TestDeriveConfigScalesWithSize(t *testing.T) {
	small := DeriveConfig(10_000, ContentNaturalLanguage)
	large := DeriveConfig(1_500_000, ContentNaturalLanguage)

	assert.Greater(t, large.MaxChunkTokens, small.MaxChunkTokens)
	assert.Greater(t, large.BatchSize, small.BatchSize)
	assert.Greater(t, large.MaxParallelBatches, small.MaxParallelBatches)
	assert.Less(t, large.BatchDelay, small.BatchDelay)
}

func TestDeriveConfigCodeReduction(t *testing.T) {
	prose := DeriveConfig(600_000, ContentNaturalLanguage)
	code := DeriveConfig(600_000, ContentCode)

	assert.Less(t, code.MaxChunkTokens, prose.MaxChunkTokens)
	assert.Less(t, code.OverlapTokens, prose.OverlapTokens)
	// Batch shape is size-driven, not content-driven.
	assert.Equal(t, prose.BatchSize, code.BatchSize)
	assert.Equal(t, prose.MaxParallelBatches, code.MaxParallelBatches)
}

func TestDeriveConfigOverlapBelowChunkSize(t *testing.T) {
	for _, n := range []int{1_000, 100_000, 1_000_000, 5_000_000} {
		for _, ct := range []ContentType{ContentCode, ContentNaturalLanguage, ContentMixed, ContentUnknown} {
			cfg := DeriveConfig(n, ct)
			assert.Less(t, cfg.OverlapTokens, cfg.MaxChunkTokens, "len=%d type=%s", n, ct)
		}
	}
}
