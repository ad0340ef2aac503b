package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel []string
	}{
		{name: "debug lets everything through", level: "debug", wantLevel: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{name: "info drops debug", level: "info", wantLevel: []string{"INFO", "WARN", "ERROR"}},
		{name: "warning alias", level: "warning", wantLevel: []string{"WARN", "ERROR"}},
		{name: "error only", level: "error", wantLevel: []string{"ERROR"}},
		{name: "unknown defaults to info", level: "verbose", wantLevel: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			log, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			entries := decodeLines(t, output)
			levels := make([]string, 0, len(entries))
			for _, e := range entries {
				levels = append(levels, e["level"].(string))
			}
			assert.Equal(t, tt.wantLevel, levels)
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "console", TimeFormat: time.Kitchen, writer: output})
	require.NoError(t, err)

	log.Info("engine call finished", slog.String("tool", "rotate"))

	// tint abbreviates levels
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "engine call finished")
	assert.Contains(t, output.String(), "rotate")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: output})
	require.NoError(t, err)

	log.Info("with source")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Info("written to file", slog.String("job_id", "abc"))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job_id":"abc"`)
}

func TestLogger_Derived(t *testing.T) {
	output := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	log.With("service", "api").
		WithAttrs(slog.String("request_id", "r-1")).
		WithGroup("job").
		Info("created", slog.String("id", "j-1"))

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	assert.Equal(t, "api", entries[0]["service"])
	assert.Equal(t, "r-1", entries[0]["request_id"])
	group := entries[0]["job"].(map[string]interface{})
	assert.Equal(t, "j-1", group["id"])
}

func TestNewDefaultAndDiscard(t *testing.T) {
	assert.NotNil(t, NewDefault().Logger)

	discard := NewDiscard()
	require.NotNil(t, discard)
	discard.Info("nothing")
	assert.NoError(t, discard.Close())
}
