package middleware

import (
	"context"
	"fmt"

	"TryOn/internal/biz"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ReasonRateLimitExceeded is the error reason of rejected requests.
const ReasonRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// RateLimit returns a middleware admitting requests through admission, keyed by client.
// When admission itself fails the request is let through and a warning is logged.
func RateLimit(admission biz.Admission, clients *ClientResolver, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			key := clientKeyFromContext(ctx, clients)

			allowed, err := admission.Allow(ctx, key)
			if err != nil {
				logger.RateLimit("rate limiter unavailable, allowing request",
					"request_id", pkglog.GetRequestID(ctx),
					"client_key", key,
					"error", err)
				return handler(ctx, req)
			}
			if !allowed {
				logger.RateLimit(fmt.Sprintf("rate limit exceeded for %s", key),
					"request_id", pkglog.GetRequestID(ctx),
					"client_key", key)
				return nil, errors.New(429, ReasonRateLimitExceeded, "too many requests, retry later")
			}

			return handler(ctx, req)
		}
	}
}

// clientKeyFromContext prefers the key resolved by Logging and recomputes it otherwise.
func clientKeyFromContext(ctx context.Context, clients *ClientResolver) string {
	if key := pkglog.GetRequestContext(ctx).ClientKey; key != "" {
		return key
	}
	if tr, ok := transport.FromServerContext(ctx); ok {
		if ht, ok := tr.(http.Transporter); ok {
			return clients.Key(ht.Request())
		}
		return "op:" + tr.Operation()
	}
	return "unknown"
}
