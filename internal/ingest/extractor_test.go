package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPlainText(t *testing.T) {
	e := NewExtractor()
	body := "plain text body\nwith two lines\n"

	for _, mt := range []string{"text/plain", "text/csv", "text/markdown"} {
		t.Run(mt, func(t *testing.T) {
			out, err := e.Extract([]byte(body), mt)
			require.NoError(t, err)
			assert.Equal(t, body, out)
		})
	}
}

func TestExtractMimeParameters(t *testing.T) {
	e := NewExtractor()
	out, err := e.Extract([]byte("hello"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExtractUnsupported(t *testing.T) {
	e := NewExtractor()
	for _, mt := range []string{"image/png", "application/zip", "video/mp4", ""} {
		_, err := e.Extract([]byte{0x01, 0x02}, mt)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, "mime %q", mt)
	}
}
