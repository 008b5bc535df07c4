package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThresholdMs marks a request as slow in Request logs.
const SlowRequestThresholdMs = 1000

// LogHelper extends the Kratos helper with typed methods. Each method adds a "type"
// field that the console encoder maps to an emoji.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates a LogHelper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, logType string, kvs []interface{}) []interface{} {
	all := make([]interface{}, 0, len(kvs)+4)
	all = append(all, "msg", msg)
	all = append(all, kvs...)
	return append(all, "type", logType)
}

// Request logs a completed HTTP request and warns when it was slow.
func (h *LogHelper) Request(ctx context.Context, method, path string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, path, status, durationMs)
	kvs = append(kvs,
		"request_id", reqCtx.RequestID,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", durationMs,
	)

	if durationMs > SlowRequestThresholdMs {
		h.Warnw(withType(msg+" slow", "request", kvs)...)
		return
	}
	h.Infow(withType(msg, "request", kvs)...)
}

// RateLimit logs a rejected or degraded admission decision.
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.Warnw(withType(msg, "rate_limit", kvs)...)
}

// Queue logs an upload queue change.
func (h *LogHelper) Queue(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "queue", kvs)...)
}

// Drain logs a periodic drain run.
func (h *LogHelper) Drain(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "drain", kvs)...)
}

// Store logs a storage backend event.
func (h *LogHelper) Store(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "store", kvs)...)
}

// Startup logs service startup details.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Success logs a completed operation.
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "success", kvs)...)
}
