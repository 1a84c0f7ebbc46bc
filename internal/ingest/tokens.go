package ingest

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// safetyMargin inflates exact tokenizer counts so a mismatch between the
// local encoding and the provider's real tokenizer can never push a chunk
// over the API limit. Overestimating only makes chunks smaller.
const safetyMargin = 1.2

// charsPerToken is the heuristic fallback calibration, per content type.
// Code tokenizes denser than prose, so it gets the smallest divisor. The
// values already include the safety margin (real-world prose averages about
// 4.4 chars per token, code about 3.5).
var charsPerToken = map[ContentType]float64{
	ContentCode:            3.0,
	ContentNaturalLanguage: 3.6,
	ContentMixed:           3.3,
	ContentUnknown:         3.3,
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// loadEncoding tries to set up the exact tokenizer once per process. The BPE
// ranks may be unavailable offline; everything falls back to the calibrated
// heuristic in that case.
func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Estimator approximates how many embedding-model tokens a text span costs.
// It is pure and deterministic; it never undercounts by design, so callers
// can treat its output as an upper bound when packing chunks.
type Estimator struct {
	enc         *tiktoken.Tiktoken
	contentType ContentType
}

func NewEstimator(contentType ContentType) *Estimator {
	if _, ok := charsPerToken[contentType]; !ok {
		contentType = ContentUnknown
	}
	return &Estimator{enc: loadEncoding(), contentType: contentType}
}

// Estimate returns a conservative token count for text. Never 0 for
// non-empty input, monotonic with length.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if e.enc != nil {
		n := len(e.enc.Encode(text, nil, nil))
		return ceilMul(n, safetyMargin)
	}
	runes := utf8.RuneCountInString(text)
	per := charsPerToken[e.contentType]
	n := int(float64(runes)/per) + 1
	return n
}

// Exact reports whether the exact tokenizer path is active.
func (e *Estimator) Exact() bool { return e.enc != nil }

func ceilMul(n int, f float64) int {
	v := int(float64(n) * f)
	if float64(v) < float64(n)*f {
		v++
	}
	if v < 1 {
		v = 1
	}
	return v
}
