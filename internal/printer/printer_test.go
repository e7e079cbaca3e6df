package printer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
)

func TestMessage_IndentsContinuationLines(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.Local)
	p.Message(at, "amy", "first\nsecond")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Mar 09 14:05")
	assert.Contains(t, lines[0], "amy")
	assert.True(t, strings.HasSuffix(lines[0], "first"))
	assert.Equal(t, strings.Repeat(" ", len("Mar 09 14:05 amy "))+"second", lines[1])
}

func TestFatalError_FieldErrors(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	err := criterio.FieldErrors{{Field: "server.api_url", Err: errors.New("cannot be empty")}}
	p.FatalError(err)

	out := buf.String()
	assert.Contains(t, out, "Validation Error")
	assert.Contains(t, out, "server.api_url: ")
	assert.Contains(t, out, "cannot be empty")
}

func TestFatalError_KeepsWrapContext(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	fields := criterio.FieldErrors{{Field: "auth.user_id", Err: errors.New("is required")}}
	p.FatalError(fmt.Errorf("load config: %w", fields))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[1], "load config")
	assert.NotContains(t, lines[1], "auth.user_id")
	assert.Contains(t, lines[3], "auth.user_id: ")
}

func TestItems_IndentUnderSection(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Section("Server")
	p.CheckItem("api", "reachable")
	p.FailItem("socket", "")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Server")
	assert.Contains(t, lines[1], "──────")
	assert.True(t, strings.HasPrefix(lines[2], "  "))
	assert.True(t, strings.HasSuffix(lines[2], Check+reset+" api: reachable"))
	assert.True(t, strings.HasSuffix(lines[3], Cross+reset+" socket"))
}
