package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"TryOn/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger_NilConfig(t *testing.T) {
	_, err := NewZapLogger(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "log config is nil")
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "verbose", Format: "json"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewZapLogger_InvalidFormat(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "info", Format: "xml"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestNewZapLogger_LogLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewZapLogger(&conf.Log{Level: tt.level, Format: "json", Env: "production"})
			require.NoError(t, err)

			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNewZapLogger_Encoders(t *testing.T) {
	tests := []struct {
		name   string
		format string
		env    string
	}{
		{"json production", "json", "production"},
		{"console", "console", "production"},
		{"development forces console", "json", "development"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewZapLogger(&conf.Log{Level: "debug", Format: tt.format, Env: tt.env})
			require.NoError(t, err)
			logger.Debug("encoder smoke test", zap.String("type", "startup"))
		})
	}
}

func TestNewZapLogger_EnvironmentVariable(t *testing.T) {
	t.Setenv(EnvVar, "development")

	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewZapLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "tryon.log")

	logger, err := NewZapLogger(&conf.Log{
		Level:      "info",
		Format:     "console",
		Env:        "production",
		OutputFile: logFile,
	})
	require.NoError(t, err)

	logger.Info("written to file", zap.String("upload_id", "u1"))
	logger.Debug("below level")
	_ = logger.Sync()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"written to file"`)
	assert.Contains(t, lines[0], `"service":"TryOn"`)
	assert.Contains(t, lines[0], `"upload_id":"u1"`)
}

func TestNewLogger(t *testing.T) {
	logger, cleanup, err := NewLogger(&conf.Log{Level: "info", Format: "json", Env: "production"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer cleanup()

	assert.IsType(t, &KratosAdapter{}, logger)

	_, _, err = NewLogger(nil)
	assert.Error(t, err)
}
