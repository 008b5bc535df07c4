// Package log provides logging utilities for the TryOn service.
// It includes a Zap logger wrapper with Kratos adapter and automatic field sanitization.
package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KratosAdapter adapts Zap logger to Kratos log.Logger interface.
// The "msg" key becomes the entry message; all other pairs become fields.
type KratosAdapter struct {
	zapLogger *zap.Logger
}

var _ log.Logger = (*KratosAdapter)(nil)

// NewKratosAdapter creates a new Kratos adapter for Zap logger.
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{
		zapLogger: zapLogger,
	}
}

// Log implements Kratos log.Logger interface.
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "KEYVALS UNPAIRED")
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		value := keyvals[i+1]

		if key == log.DefaultMessageKey {
			if s, ok := value.(string); ok && msg == "" {
				msg = s
				continue
			}
		}
		fields = append(fields, toField(key, value))
	}

	if ce := a.zapLogger.Check(zapLevel(level), msg); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// Sync flushes buffered entries.
func (a *KratosAdapter) Sync() error {
	return a.zapLogger.Sync()
}

func toField(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, SanitizeField(key, v))
	case error:
		return zap.String(key, v.Error())
	case fmt.Stringer:
		return zap.String(key, SanitizeField(key, v.String()))
	default:
		return zap.Any(key, v)
	}
}

func zapLevel(level log.Level) zapcore.Level {
	switch level {
	case log.LevelDebug:
		return zapcore.DebugLevel
	case log.LevelWarn:
		return zapcore.WarnLevel
	case log.LevelError:
		return zapcore.ErrorLevel
	case log.LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
