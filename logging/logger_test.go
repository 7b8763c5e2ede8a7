package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level LogLevel) (*CardAssistLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLogger(&LoggerConfig{
		Level:     level,
		Format:    "json",
		Output:    &buf,
		AddSource: false,
		Component: "test",
	}), &buf
}

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		return nil
	}
	return entry
}

func TestLogger_KeyValueArgs(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.Info("chat.handled", "intent", "policy_query", "confidence", 0.95)

	entry := lastLine(buf)
	require.NotNil(t, entry)
	assert.Equal(t, "chat.handled", entry["msg"])
	assert.Equal(t, "policy_query", entry["intent"])
	assert.InDelta(t, 0.95, entry["confidence"].(float64), 1e-9)
	assert.Equal(t, "test", entry["component"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped too")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_WithSession(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.WithSession("sess-9", "inv-3").Info("turn complete")

	entry := lastLine(buf)
	require.NotNil(t, entry)
	assert.Equal(t, "sess-9", entry["session_id"])
	assert.Equal(t, "inv-3", entry["invocation_id"])

	// The parent logger is untouched.
	buf.Reset()
	logger.Info("no session")
	entry = lastLine(buf)
	require.NotNil(t, entry)
	assert.NotContains(t, entry, "session_id")
}

func TestLogger_WithContextAttrs(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelInfo)

	logger.WithContext("region", "us-east-1").Error("store unavailable", "store", "s3")

	entry := lastLine(buf)
	require.NotNil(t, entry)
	assert.Equal(t, "us-east-1", entry["region"])
	assert.Equal(t, "s3", entry["store"])
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
