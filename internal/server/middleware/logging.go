package middleware

import (
	"context"
	"time"

	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Logging returns a middleware that tags each request with a request id and client key,
// then logs method, path, status and duration once the handler returns.
//
// Example console output:
//
//	🟢 POST /v1/uploads - 200 (3ms)
//	🐌 POST /v1/uploads/process - 200 (2140ms) slow
func Logging(clients *ClientResolver, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
				clientKey string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = clients.ClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
					requestID = httpReq.Header.Get(RequestIDHeader)
					clientKey = clients.Key(httpReq)
				}

				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, clientKey)

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()
			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}

			logger.Request(ctx, method, path, status, duration,
				"ip", ip,
				"client_key", clientKey,
				"user_agent", userAgent,
			)

			return reply, err
		}
	}
}
