package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	lines []string
}

func (l *lineRecorder) Write(p []byte) (int, error) {
	l.lines = append(l.lines, string(p))
	return len(p), nil
}

func TestDeferredWriter_FlushesLines(t *testing.T) {
	var d DeferredWriter
	_, _ = d.Write([]byte("{\"level\":\"info\"}\n{\"level\":"))
	_, _ = d.Write([]byte("\"warn\"}\n"))

	rec := &lineRecorder{}
	require.NoError(t, d.Flush(rec))
	assert.Equal(t, []string{"{\"level\":\"info\"}\n", "{\"level\":\"warn\"}\n"}, rec.lines)

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))
	assert.Empty(t, out.String(), "flush empties the buffer")
}
