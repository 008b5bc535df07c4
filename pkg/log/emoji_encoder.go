package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps the "type" field of an entry to the prefix used by the console encoder.
var emojiMap = map[string]string{
	"request":    "🌐",
	"rate_limit": "🚦",
	"queue":      "📥",
	"upload":     "📤",
	"drain":      "🔁",
	"store":      "💾",
	"startup":    "🚀",
	"success":    "✅",
}

func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

func levelEmoji(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "❌"
	case level == zapcore.WarnLevel:
		return "⚠️"
	case level == zapcore.InfoLevel:
		return "ℹ️"
	default:
		return "🐛"
	}
}

// EmojiConsoleEncoder wraps the zap console encoder and prefixes each message with
// an emoji chosen from the HTTP status, then the "type" field, then the level.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder creates the console encoder used in development.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	entry.Message = emojiFor(entry.Level, fields) + " " + entry.Message
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

func emojiFor(level zapcore.Level, fields []zapcore.Field) string {
	var logType string
	for _, field := range fields {
		switch {
		case field.Key == "status" && (field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type):
			if field.Integer > 0 {
				return statusEmoji(field.Integer)
			}
		case field.Key == "type" && field.Type == zapcore.StringType:
			logType = field.String
		}
	}
	if e, ok := emojiMap[logType]; ok {
		return e
	}
	return levelEmoji(level)
}
