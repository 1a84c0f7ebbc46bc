package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateEmpty(t *testing.T) {
	est := NewEstimator(ContentNaturalLanguage)
	assert.Equal(t, 0, est.Estimate(""))
}

func TestEstimateNeverZeroForNonEmpty(t *testing.T) {
	est := NewEstimator(ContentUnknown)
	for _, s := range []string{"a", " ", "x y", "word", "日本語"} {
		assert.GreaterOrEqual(t, est.Estimate(s), 1, "input %q", s)
	}
}

func TestEstimateMonotonic(t *testing.T) {
	est := NewEstimator(ContentNaturalLanguage)
	base := "The quick brown fox jumps over the lazy dog. "
	prev := 0
	for i := 1; i <= 8; i++ {
		n := est.Estimate(strings.Repeat(base, i))
		require.GreaterOrEqual(t, n, prev, "estimate shrank at repetition %d", i)
		prev = n
	}
	assert.Greater(t, prev, est.Estimate(base))
}

func TestEstimateDeterministic(t *testing.T) {
	est := NewEstimator(ContentCode)
	text := "func main() {\n\tfmt.Println(\"hello\")\n}\n"
	assert.Equal(t, est.Estimate(text), est.Estimate(text))
}

func TestEstimatorUnknownContentTypeFallsBack(t *testing.T) {
	// An unrecognized content type must not panic on the heuristic path.
	est := NewEstimator(ContentType("bogus"))
	assert.GreaterOrEqual(t, est.Estimate("some text here"), 1)
}

func TestCeilMul(t *testing.T) {
	cases := []struct {
		n    int
		f    float64
		want int
	}{
		{0, 1.2, 1},
		{1, 1.2, 2},
		{5, 1.2, 6},
		{10, 1.2, 12},
		{100, 1.2, 120},
		{7, 1.0, 7},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ceilMul(tc.n, tc.f), "ceilMul(%d, %g)", tc.n, tc.f)
	}
}
