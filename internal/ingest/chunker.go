package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

// BoundaryType records the granularity at which a chunk's leading unit was
// cut from the document.
type BoundaryType string

const (
	BoundaryDeclaration BoundaryType = "declaration"
	BoundaryParagraph   BoundaryType = "paragraph"
	BoundarySentence    BoundaryType = "sentence"
	BoundaryLine        BoundaryType = "line"
	BoundaryWord        BoundaryType = "word"
	BoundaryWindow      BoundaryType = "window"
)

// Chunk is one token-bounded span of a document, ready for embedding.
//
// Content:    chunk text, including any overlap seeded from the previous chunk.
// Context:    retrieval label (document name, classification, structural hint).
// Tokens:     conservative token estimate for Content.
// OverlapLen: byte length of the overlap prefix inside Content; stripping it
//             from every chunk and concatenating reconstructs the document.
type Chunk struct {
	Index       int
	Content     string
	Context     string
	Tokens      int
	Boundary    BoundaryType
	ContentType ContentType
	OverlapLen  int
}

// unit is an intermediate span that already fits the per-unit token budget.
// Chunks are assembled by packing consecutive units.
type unit struct {
	text     string
	boundary BoundaryType
	kind     ContentType
}

// Refinement ladders: when a natural unit is too big it is re-split at the
// next finer granularity, down to a hard rune-window fallback.
var (
	proseLadder   = []BoundaryType{BoundaryParagraph, BoundarySentence, BoundaryLine, BoundaryWord}
	codeLadder    = []BoundaryType{BoundaryDeclaration, BoundaryLine, BoundaryWord}
	unknownLadder = []BoundaryType{BoundarySentence, BoundaryLine, BoundaryWord}
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n+`)
	sentenceEndSplit = regexp.MustCompile(`[.!?]+[)"']*(\s+|$)`)

	// A declaration starts at column zero with a definition keyword. Covers
	// the mainstream languages the analyzer recognizes.
	declStartRe = regexp.MustCompile(`^(func|fn|def|class|function|type|interface|struct|enum|impl|public|private|protected|static|export|package|import|const|var|let|async|module)\b`)
)

// Chunker splits one document deterministically: same text, classification
// and config always produce byte-identical chunks.
type Chunker struct {
	docName    string
	cfg        ProcessingConfig
	cls        Classification
	est        *Estimator
	unitBudget int
}

func NewChunker(docName string, cfg ProcessingConfig, cls Classification, est *Estimator) *Chunker {
	budget := cfg.MaxChunkTokens - cfg.OverlapTokens
	if budget < 16 {
		budget = 16
	}
	if budget > cfg.MaxChunkTokens {
		budget = cfg.MaxChunkTokens
	}
	return &Chunker{docName: docName, cfg: cfg, cls: cls, est: est, unitBudget: budget}
}

// Chunk splits text into ordered, overlapping, token-bounded chunks. Empty
// input (after trimming) yields zero chunks; the orchestrator treats that as
// a failure, not a success.
func (c *Chunker) Chunk(text string) ([]Chunk, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var units []unit
	switch c.cls.Type {
	case ContentCode:
		units = c.refine(text, codeLadder, ContentCode)
	case ContentNaturalLanguage:
		units = c.refine(text, proseLadder, ContentNaturalLanguage)
	case ContentMixed:
		// Segment into contiguous code-like and prose-like runs, then apply
		// the matching strategy per run.
		for _, seg := range segmentMixed(text) {
			if seg.kind == ContentCode {
				units = append(units, c.refine(seg.text, codeLadder, ContentCode)...)
			} else {
				units = append(units, c.refine(seg.text, proseLadder, ContentNaturalLanguage)...)
			}
		}
	default:
		units = c.refine(text, unknownLadder, ContentUnknown)
	}

	if len(units) == 0 {
		return nil, nil
	}
	return c.assemble(units)
}

// refine splits text at ladder[0] granularity, greedily regrouping pieces up
// to the unit budget; oversized pieces recurse down the ladder, ending at a
// rune-window cut that always terminates.
func (c *Chunker) refine(text string, ladder []BoundaryType, kind ContentType) []unit {
	level := ladder[0]
	pieces := splitLevel(level, text)
	sep := sepFor(level)

	var out []unit
	var buf []string
	bufTok := 0

	flush := func() {
		for len(buf) > 0 {
			n := len(buf)
			for n > 1 && c.est.Estimate(strings.Join(buf[:n], sep)) > c.unitBudget {
				n--
			}
			out = append(out, unit{text: strings.Join(buf[:n], sep), boundary: level, kind: kind})
			buf = buf[n:]
		}
		bufTok = 0
	}

	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t := c.est.Estimate(p)
		if t > c.unitBudget {
			flush()
			if len(ladder) > 1 {
				out = append(out, c.refine(p, ladder[1:], kind)...)
			} else {
				out = append(out, c.windowUnits(p, kind)...)
			}
			continue
		}
		// len(buf) approximates the token cost of the separators a join adds.
		if bufTok+t+len(buf) > c.unitBudget {
			flush()
		}
		buf = append(buf, p)
		bufTok += t
	}
	flush()
	return out
}

// windowUnits hard-cuts a span that no natural boundary can shrink (one
// pathological word, minified code). Pure character windows, verified
// against the estimator so the budget still holds.
func (c *Chunker) windowUnits(s string, kind ContentType) []unit {
	var out []unit
	r := []rune(s)
	for len(r) > 0 {
		size := c.unitBudget * 2
		if size > len(r) {
			size = len(r)
		}
		for size > 1 && c.est.Estimate(string(r[:size])) > c.unitBudget {
			size /= 2
		}
		out = append(out, unit{text: string(r[:size]), boundary: BoundaryWindow, kind: kind})
		r = r[size:]
	}
	return out
}

// assemble packs units into chunks, seeding each chunk after the first with
// an overlap tail from its predecessor. The token ceiling is verified on the
// final joined content, not just the sum of unit estimates.
func (c *Chunker) assemble(units []unit) ([]Chunk, error) {
	var chunks []Chunk
	var seed []unit

	i := 0
	for i < len(units) {
		seedText := joinUnits(seed)
		var fresh []unit

		for i < len(units) {
			candidate := combine(seedText, append(fresh, units[i]))
			if c.est.Estimate(candidate) > c.cfg.MaxChunkTokens {
				if len(fresh) > 0 {
					break
				}
				if seedText != "" {
					// Overlap plus the next unit would breach the ceiling;
					// the unit wins, the overlap is dropped.
					seedText = ""
					continue
				}
				return nil, fmt.Errorf("%w: single unit estimated at %d tokens (ceiling %d)",
					ErrChunkTooLarge, c.est.Estimate(candidate), c.cfg.MaxChunkTokens)
			}
			fresh = append(fresh, units[i])
			i++
		}

		content := combine(seedText, fresh)
		overlapLen := 0
		if seedText != "" {
			overlapLen = len(seedText) + 1 // +1 for the joining newline
		}
		first := fresh[0]
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			Index:       idx,
			Content:     content,
			Context:     c.contextLabel(first.boundary, first.kind, idx),
			Tokens:      c.est.Estimate(content),
			Boundary:    first.boundary,
			ContentType: first.kind,
			OverlapLen:  overlapLen,
		})

		seed = c.overlapTail(fresh)
	}
	return chunks, nil
}

// overlapTail picks trailing units of a chunk worth at most OverlapTokens,
// to seed the next chunk with surrounding context. When even the last whole
// unit exceeds the budget, its trailing words are carried instead, so
// consecutive chunks still share context.
func (c *Chunker) overlapTail(us []unit) []unit {
	if c.cfg.OverlapTokens <= 0 || len(us) == 0 {
		return nil
	}
	var tail []unit
	tok := 0
	for j := len(us) - 1; j >= 0; j-- {
		t := c.est.Estimate(us[j].text)
		if tok+t > c.cfg.OverlapTokens {
			break
		}
		tail = append([]unit{us[j]}, tail...)
		tok += t
	}
	if len(tail) > 0 {
		return tail
	}

	last := us[len(us)-1]
	words := strings.Fields(last.text)
	lo := len(words)
	for lo > 0 {
		if c.est.Estimate(strings.Join(words[lo-1:], " ")) > c.cfg.OverlapTokens {
			break
		}
		lo--
	}
	if lo == len(words) {
		// Even one trailing word blows the budget (pathological input).
		return nil
	}
	return []unit{{text: strings.Join(words[lo:], " "), boundary: last.boundary, kind: last.kind}}
}

func (c *Chunker) contextLabel(b BoundaryType, kind ContentType, idx int) string {
	return fmt.Sprintf("%s | %s | %s part %d", c.docName, kind, b, idx+1)
}

type segment struct {
	kind ContentType
	text string
}

// segmentMixed labels every line code or prose with the analyzer's line
// heuristic and groups contiguous same-kind runs. Blank lines stay with the
// current run.
func segmentMixed(text string) []segment {
	lines := strings.Split(text, "\n")
	var segs []segment
	var cur []string
	var curKind ContentType

	flush := func() {
		if len(cur) == 0 {
			return
		}
		body := strings.Join(cur, "\n")
		if strings.TrimSpace(body) != "" {
			segs = append(segs, segment{kind: curKind, text: body})
		}
		cur = nil
	}

	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			cur = append(cur, ln)
			continue
		}
		k := ContentNaturalLanguage
		if looksLikeCode(ln) {
			k = ContentCode
		}
		if curKind == "" {
			curKind = k
		}
		if k != curKind {
			flush()
			curKind = k
		}
		cur = append(cur, ln)
	}
	flush()
	return segs
}

func splitLevel(level BoundaryType, text string) []string {
	switch level {
	case BoundaryParagraph:
		return paragraphSplitRe.Split(text, -1)
	case BoundarySentence:
		return splitSentences(text)
	case BoundaryDeclaration:
		return splitDeclarations(text)
	case BoundaryLine:
		return strings.Split(text, "\n")
	case BoundaryWord:
		return strings.Fields(text)
	default:
		return []string{text}
	}
}

func sepFor(level BoundaryType) string {
	switch level {
	case BoundarySentence, BoundaryWord:
		return " "
	default:
		return "\n"
	}
}

// splitSentences cuts after terminal punctuation (handling closing quotes
// and parens) without dropping any non-whitespace character.
func splitSentences(text string) []string {
	matches := sentenceEndSplit.FindAllStringIndex(text, -1)
	var out []string
	prev := 0
	for _, m := range matches {
		piece := strings.TrimSpace(text[prev:m[1]])
		if piece != "" {
			out = append(out, piece)
		}
		prev = m[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// splitDeclarations groups lines into blocks that start at a column-zero
// definition keyword, keeping a declaration and its body together.
func splitDeclarations(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var cur []string
	for _, ln := range lines {
		if declStartRe.MatchString(ln) && len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
		cur = append(cur, ln)
	}
	if len(cur) > 0 {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

func joinUnits(us []unit) string {
	if len(us) == 0 {
		return ""
	}
	parts := make([]string, len(us))
	for i, u := range us {
		parts[i] = u.text
	}
	return strings.Join(parts, "\n")
}

func combine(seedText string, fresh []unit) string {
	body := joinUnits(fresh)
	if seedText == "" {
		return body
	}
	if body == "" {
		return seedText
	}
	return seedText + "\n" + body
}
