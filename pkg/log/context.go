package log

import (
	"context"
	"math/rand"
	"time"
)

type contextKey struct{}

// RequestContext carries per-request tracing data through the handler chain.
type RequestContext struct {
	RequestID string
	// ClientKey is the rate limiting key of the caller (API key or client IP).
	ClientKey string
	StartTime time.Time
}

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateRequestID returns a random 12 character base36 id.
func GenerateRequestID() string {
	b := make([]byte, 12)
	for i := range b {
		b[i] = base36Chars[rand.Intn(len(base36Chars))]
	}
	return string(b)
}

// WithRequestContext attaches a RequestContext to ctx.
func WithRequestContext(ctx context.Context, requestID, clientKey string) context.Context {
	return context.WithValue(ctx, contextKey{}, &RequestContext{
		RequestID: requestID,
		ClientKey: clientKey,
		StartTime: time.Now(),
	})
}

// GetRequestContext returns the RequestContext of ctx, or a placeholder with
// RequestID "unknown" when none is attached.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(contextKey{}).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID returns the request id stored in ctx.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime returns the milliseconds since the request started.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
