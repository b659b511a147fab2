package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFileLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driverd.log")
	log, err := New(Options{Level: level, Format: "json", OutputPath: path})
	require.NoError(t, err)
	return log, path
}

func readEntries(t *testing.T, log *Logger, path string) []map[string]any {
	t.Helper()
	require.NoError(t, log.Sync())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_WritesJSONToFile(t *testing.T) {
	log, path := newFileLogger(t, "debug")

	log.WithComponent("driver-supervisor").Info("driver started", zap.Int("pid", 42))

	entries := readEntries(t, log, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "driver started", entries[0]["msg"])
	assert.Equal(t, "driver-supervisor", entries[0]["component"])
	assert.EqualValues(t, 42, entries[0]["pid"])
	assert.Contains(t, entries[0], "timestamp")
}

func TestNew_UnknownLevelMeansInfo(t *testing.T) {
	log, path := newFileLogger(t, "loud")

	log.Debug("hidden")
	log.Info("visible")

	entries := readEntries(t, log, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0]["msg"])
}

func TestNew_BadOutputPath(t *testing.T) {
	_, err := New(Options{OutputPath: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestWithContext(t *testing.T) {
	log, path := newFileLogger(t, "info")

	assert.Same(t, log, log.WithContext(context.Background()))

	ctx := WithRequestID(context.Background(), "req-1")
	log.WithContext(ctx).Info("request only")
	log.WithContext(WithSessionID(ctx, "sess-1")).Error("navigation failed")

	entries := readEntries(t, log, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.NotContains(t, entries[0], "session_id")
	assert.Equal(t, "req-1", entries[1]["request_id"])
	assert.Equal(t, "sess-1", entries[1]["session_id"])
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.WithComponent("x").Error("ignored")
	assert.NoError(t, log.Sync())
}
