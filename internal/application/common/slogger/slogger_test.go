package slogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture installs a JSON logger over a buffer and restores the previous
// logger when the test ends.
func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	previous := logger()
	t.Cleanup(func() { SetLogger(previous) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})))
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInfoEmitsFields(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Info(context.Background(), "Submitted batch", Fields{
		"batch_ref": "batch_abc",
		"documents": 42,
	})

	entry := decodeLine(t, buf)
	assert.Equal(t, "Submitted batch", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "batch_abc", entry["batch_ref"])
	assert.Equal(t, float64(42), entry["documents"])
}

func TestDebugRespectsLevel(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Debug(context.Background(), "noisy detail", nil)
	assert.Zero(t, buf.Len(), "debug is suppressed at info level")

	Warn(context.Background(), "something odd", nil)
	assert.NotZero(t, buf.Len())
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, Fields{"a": 1}, Field("a", 1))
	assert.Equal(t, Fields{"a": 1, "b": 2}, Fields2("a", 1, "b", 2))
	assert.Equal(t, Fields{"a": 1, "b": 2, "c": 3}, Fields3("a", 1, "b", 2, "c", 3))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything else"))
}

func TestNoCtxVariants(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	InfoNoCtx("startup complete", Field("version", "1.0"))

	entry := decodeLine(t, buf)
	assert.Equal(t, "startup complete", entry["msg"])
	assert.Equal(t, "1.0", entry["version"])
}
