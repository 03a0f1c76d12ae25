package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kfalter89/webpilot/internal/config"
)

// initToBuffer initializes the global logger with console output captured in
// a buffer. Resets the singleton first for test isolation.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize_ConsoleFormat(t *testing.T) {
	buf := initToBuffer(t, config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "testservice",
	})

	GetLogger().Info("This is a test message.")

	output := buf.String()
	assert.Contains(t, output, "INFO", "Output should contain the log level")
	assert.Contains(t, output, "This is a test message.")
	assert.Contains(t, output, "testservice.")
}

func TestInitialize_JSONFormat(t *testing.T) {
	buf := initToBuffer(t, config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "jsontest",
	})

	GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")
	assert.Equal(t, "WARN", logEntry["level"])
	assert.Equal(t, "jsontest", logEntry["logger"])
	assert.Equal(t, "This is a JSON message.", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
}

func TestInitialize_InvalidLevelFallsBackToInfo(t *testing.T) {
	buf := initToBuffer(t, config.LoggerConfig{
		Level:  "shouty",
		Format: "console",
	})

	GetLogger().Debug("hidden")
	GetLogger().Info("visible")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "visible")
}

func TestInitialize_FileSink(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "webpilot-test.log")

	initToBuffer(t, config.LoggerConfig{
		Level:     "debug",
		Format:    "json",
		LogFile:   logFile,
		MaxSizeMB: 1,
	})

	GetLogger().Error("This should go to the file.")
	Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "This should go to the file.")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "first"})

	// The second call must be ignored by the init guard.
	Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "second"}, zapcore.AddSync(&bytes.Buffer{}))

	GetLogger().Info("test")
	assert.True(t, strings.Contains(buf.String(), "first"))
	assert.False(t, strings.Contains(buf.String(), "second"))
}

func TestGetLogger_FallbackBeforeInit(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
}

func TestGetLogger_ReturnsGlobalAfterInit(t *testing.T) {
	initToBuffer(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "global"})
	assert.Equal(t, globalLogger.Load(), GetLogger())
}
