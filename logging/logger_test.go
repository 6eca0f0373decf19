package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any

	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any

		require.NoError(t, dec.Decode(&entry))
		entries = append(entries, entry)
	}

	return entries
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLevel("info"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warn"))
	assert.Equal(t, LogLevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestEngineLoggerContextualAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	logger.WithComponent("orchestrator").WithSession("sess-1").WithContext("workflow_id", "incidence_rate").Info("stage resolved")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "stage resolved", entries[0]["msg"])
	assert.Equal(t, "orchestrator", entries[0]["component"])
	assert.Equal(t, "sess-1", entries[0]["session_id"])
	assert.Equal(t, "incidence_rate", entries[0]["workflow_id"])
}

func TestEngineLoggerLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: buf})

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("also kept")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "also kept", entries[1]["msg"])
}

func TestEngineLoggerCloneIsolation(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	child := base.WithContext("stage", "facility_level")
	base.Info("base entry")
	child.Info("child entry")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0], "stage")
	assert.Equal(t, "facility_level", entries[1]["stage"])
}

func TestEngineLoggerToolAndOracleCalls(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	logger.LogToolCall("run_computation", 20*time.Millisecond, true, nil)
	logger.LogToolCall("render_visualization", time.Millisecond, false, errors.New("render failed"))
	logger.LogOracleCall("anthropic", 50*time.Millisecond, true, nil)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "Tool execution completed", entries[0]["msg"])
	assert.Equal(t, "run_computation", entries[0]["tool_name"])
	assert.Equal(t, "Tool execution failed", entries[1]["msg"])
	assert.Equal(t, "render failed", entries[1]["error"])
	assert.Equal(t, "Oracle call completed", entries[2]["msg"])
}

func TestEngineLoggerStageTransition(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: buf})

	logger.LogStageTransition("incidence_rate", "facility_level", "age_group", false)

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Stage transition", entries[0]["msg"])
	assert.Equal(t, "facility_level", entries[0]["from_stage"])
	assert.Equal(t, "age_group", entries[0]["to_stage"])
	assert.Equal(t, false, entries[0]["auto_selected"])
}

func TestEngineLoggerTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: buf})

	logger.Info("hello %s", "world")

	assert.Contains(t, buf.String(), "hello world")
}

func TestAdaptersImplementLogger(t *testing.T) {
	var logger Logger

	logger = NewDefaultSlogLogger()
	logger.Debug("via slog")

	logger = NewZapAdapter(zap.NewNop())
	logger.Info("via zap", "key", "value")

	logger = NoOpLogger{}
	logger.Error("discarded")

	logger = NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &bytes.Buffer{}})
	logger.Warn("engine logger satisfies the interface too")
}
