// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/saz-cli/internal/config"
)

// -- Test Helper Functions --

// syncBuffer is a goroutine-safe in-memory WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func initForTest(t *testing.T, cfg config.LoggerConfig) *syncBuffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	out := &syncBuffer{}
	Initialize(cfg, out)
	return out
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Info("This is a test message.")
		Sync()

		output := out.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, "TestService.")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})
		Named("saz").Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out.String()), &logEntry), "Log output should be valid JSON")
		assert.Equal(t, "WARN", logEntry["level"])
		assert.Equal(t, "JSONTest.saz", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should filter below the configured level", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()
		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("should fall back to info on an unknown level", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("debug line")
		GetLogger().Info("info line")
		Sync()
		assert.NotContains(t, out.String(), "debug line")
		assert.Contains(t, out.String(), "info line")
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "saz.log")
		initForTest(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		assert.True(t, strings.HasPrefix(string(content), "{"), "file sink is always JSON")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		out := initForTest(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		assert.Same(t, logger1, logger2)
		logger2.Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		initForTest(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestNew_DoesNotTouchGlobals(t *testing.T) {
	ResetForTest()
	out := &syncBuffer{}
	logger := New(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "local"}, out)
	logger.Info("local only")

	assert.Nil(t, globalLogger.Load())
	assert.Contains(t, out.String(), `"logger":"local"`)
}
