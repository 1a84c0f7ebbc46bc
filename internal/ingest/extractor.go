package ingest

import (
	"bytes"
	"fmt"
	"mime"
	"strings"

	"code.sajari.com/docconv"
)

// MIME types the extractor accepts. Everything else is rejected up front
// rather than handed to a parser that will produce garbage.
const (
	mimePlainText = "text/plain"
	mimeCSV       = "text/csv"
	mimeMarkdown  = "text/markdown"
	mimePDF       = "application/pdf"
	mimeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor converts raw file bytes into plain text based on the declared
// MIME type. Parser failures propagate as ErrExtractionFailed; they are never
// collapsed into an empty result, because "empty after extraction" must stay
// distinguishable from "the parser blew up".
type Extractor struct {
	useReadability bool
}

func NewExtractor() *Extractor {
	return &Extractor{useReadability: false}
}

// Extract returns the plain text of data. The MIME type may carry parameters
// ("text/plain; charset=utf-8"); they are ignored.
func (e *Extractor) Extract(data []byte, mimeType string) (string, error) {
	mt := normalizeMime(mimeType)

	switch mt {
	case mimePlainText, mimeCSV, mimeMarkdown:
		return string(data), nil

	case mimePDF, mimeDocx:
		res, err := docconv.Convert(bytes.NewReader(data), mt, e.useReadability)
		if err != nil {
			return "", fmt.Errorf("%w: docconv %s: %v", ErrExtractionFailed, mt, err)
		}
		return res.Body, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}
}

func normalizeMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
