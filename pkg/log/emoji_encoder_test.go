package log

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestStatusEmoji(t *testing.T) {
	tests := []struct {
		status int64
		want   string
	}{
		{200, "🟢"},
		{301, "🟡"},
		{429, "🟠"},
		{503, "🔴"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusEmoji(tt.status), "status %d", tt.status)
	}
}

func TestEmojiFor(t *testing.T) {
	tests := []struct {
		name   string
		level  zapcore.Level
		fields []zapcore.Field
		want   string
	}{
		{"status wins over type", zapcore.InfoLevel, []zapcore.Field{zap.String("type", "queue"), zap.Int("status", 409)}, "🟠"},
		{"type mapping", zapcore.InfoLevel, []zapcore.Field{zap.String("type", "upload")}, "📤"},
		{"rate limit type", zapcore.WarnLevel, []zapcore.Field{zap.String("type", "rate_limit")}, "🚦"},
		{"unknown type falls back to level", zapcore.WarnLevel, []zapcore.Field{zap.String("type", "nope")}, "⚠️"},
		{"error level", zapcore.ErrorLevel, nil, "❌"},
		{"info level", zapcore.InfoLevel, nil, "ℹ️"},
		{"debug level", zapcore.DebugLevel, nil, "🐛"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, emojiFor(tt.level, tt.fields))
		})
	}
}

func TestEmojiConsoleEncoder_EncodeEntry(t *testing.T) {
	enc := NewEmojiConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	})

	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Now(),
		Message: "upload queue pass completed",
	}, []zapcore.Field{zap.String("type", "drain"), zap.Int("processed", 2)})
	require.NoError(t, err)
	defer buf.Free()

	line := buf.String()
	assert.True(t, strings.Contains(line, "🔁 upload queue pass completed"), line)
	assert.Contains(t, line, `"processed": 2`)
}

func TestEmojiConsoleEncoder_Clone(t *testing.T) {
	enc := NewEmojiConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg"})

	clone := enc.Clone()
	_, ok := clone.(*EmojiConsoleEncoder)
	assert.True(t, ok)
}
