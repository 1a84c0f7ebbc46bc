package ingest

import (
	"math"
	"regexp"
	"strings"
)

// ContentType is the analyzer's verdict on what kind of text a document
// holds. It drives both token calibration and the chunking strategy.
type ContentType string

const (
	ContentCode            ContentType = "code"
	ContentNaturalLanguage ContentType = "natural_language"
	ContentMixed           ContentType = "mixed"
	ContentUnknown         ContentType = "unknown"
)

// Characteristics carries the raw signals behind a classification, useful
// for logging and for the chunker's per-line decisions on mixed documents.
type Characteristics struct {
	CodeScore   float64 // weighted code indicators per 1000 chars
	ProseScore  float64 // weighted prose indicators per 1000 chars
	AvgIndent   float64 // mean leading whitespace of non-empty lines
	SampleRunes int
}

// Classification is the analyzer output consumed by the configurator and the
// chunker. Confidence is in [0,1].
type Classification struct {
	Type            ContentType
	Confidence      float64
	Characteristics Characteristics
}

const (
	// analyzeSampleRunes bounds how much of the document the analyzer reads;
	// classification does not need the whole text.
	analyzeSampleRunes = 8000

	// dominanceRatio is how much one signal must exceed the other to win
	// outright; below it (with both signals present) the text is mixed.
	dominanceRatio = 2.0

	codeFloor  = 10.0
	proseFloor = 10.0
)

var (
	// Keywords that rarely appear in prose. Deliberately excludes words like
	// "if" and "for" that are common English.
	codeKeywordRe = regexp.MustCompile(`\b(func|def|class|function|import|package|struct|interface|const|var|let|void|public|private|protected|static|return|elif|lambda|async|await|typedef|namespace)\b`)

	codeOperatorRe = regexp.MustCompile(`(\{|\}|;|=>|->|==|!=|&&|\|\||:=|</|/>)`)

	commentPrefixes = []string{"//", "#", "/*", "*", "--", "'''", `"""`}

	proseConnectiveRe = regexp.MustCompile(`(?i)\b(the|and|of|to|is|that|with|for|was|are|this|have|has|not|but|which|their|from|would|about|there)\b`)

	sentenceEndRe = regexp.MustCompile(`[.!?](\s|$)`)
)

// Analyze classifies a text sample as code, natural language, mixed, or
// unknown. Pure and deterministic: the same sample always yields the same
// classification.
func Analyze(text string) Classification {
	sample := truncateRunes(text, analyzeSampleRunes)
	trimmed := strings.TrimSpace(sample)
	if trimmed == "" {
		return Classification{Type: ContentUnknown}
	}

	runes := len([]rune(sample))
	lines := strings.Split(sample, "\n")

	var (
		codeWeight   float64
		indentSum    float64
		nonEmpty     int
		commentLines int
	)
	for _, line := range lines {
		t := strings.TrimLeft(line, " \t")
		if strings.TrimSpace(t) == "" {
			continue
		}
		nonEmpty++
		indentSum += float64(len(line) - len(t))
		for _, p := range commentPrefixes {
			if strings.HasPrefix(t, p) {
				commentLines++
				break
			}
		}
	}

	codeWeight += 2 * float64(len(codeKeywordRe.FindAllStringIndex(sample, -1)))
	codeWeight += float64(len(codeOperatorRe.FindAllStringIndex(sample, -1)))
	codeWeight += 1.5 * float64(commentLines)

	avgIndent := 0.0
	if nonEmpty > 0 {
		avgIndent = indentSum / float64(nonEmpty)
	}
	// Structural complexity: deep, consistent indentation is a code smell in
	// the literal sense.
	codeWeight += math.Min(avgIndent, 8) * float64(nonEmpty) * 0.25

	proseWeight := float64(len(proseConnectiveRe.FindAllStringIndex(sample, -1)))
	proseWeight += 2 * float64(len(sentenceEndRe.FindAllStringIndex(sample, -1)))

	// Normalize per 1000 chars so the floors mean the same thing for a 2KB
	// sample and an 8KB one.
	codeScore := codeWeight / float64(runes) * 1000
	proseScore := proseWeight / float64(runes) * 1000

	ch := Characteristics{
		CodeScore:   codeScore,
		ProseScore:  proseScore,
		AvgIndent:   avgIndent,
		SampleRunes: runes,
	}

	switch {
	case codeScore >= codeFloor && codeScore >= dominanceRatio*proseScore:
		return Classification{Type: ContentCode, Confidence: dominantConfidence(codeScore, codeFloor), Characteristics: ch}
	case proseScore >= proseFloor && proseScore >= dominanceRatio*codeScore:
		return Classification{Type: ContentNaturalLanguage, Confidence: dominantConfidence(proseScore, proseFloor), Characteristics: ch}
	case codeScore < codeFloor && proseScore < proseFloor:
		weak := math.Max(codeScore/codeFloor, proseScore/proseFloor)
		return Classification{Type: ContentUnknown, Confidence: 0.5 * weak, Characteristics: ch}
	default:
		// Both signals present, neither dominates.
		balance := math.Min(codeScore, proseScore) / math.Max(codeScore, proseScore)
		return Classification{Type: ContentMixed, Confidence: 0.5 + 0.4*balance, Characteristics: ch}
	}
}

// dominantConfidence saturates toward 1 as the winning signal pulls away
// from its floor; exactly at the floor it is 0.5.
func dominantConfidence(score, floor float64) float64 {
	ratio := score / floor
	return math.Min(0.99, 0.5+0.25*(ratio-1))
}

// looksLikeCode is the line-level heuristic the chunker applies densely when
// segmenting mixed documents. It mirrors the analyzer's signals at single
// line granularity.
func looksLikeCode(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	for _, p := range commentPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	ops := len(codeOperatorRe.FindAllStringIndex(t, -1))
	kws := len(codeKeywordRe.FindAllStringIndex(t, -1))
	if ops+2*kws >= 2 {
		return true
	}
	// Heavily indented lines inside a document are usually code blocks.
	if len(line)-len(strings.TrimLeft(line, " \t")) >= 4 && ops+kws > 0 {
		return true
	}
	return false
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
