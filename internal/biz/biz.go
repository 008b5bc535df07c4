// Package biz contains business logic layer implementations.
// This layer holds the admission control and upload queue rules and owns the
// interfaces implemented by the data layer.
package biz

import (
	"TryOn/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewRateLimiterFromConfig,
	NewUploadQueue,
)

// NewRateLimiterFromConfig builds the in-process limiter from the ratelimit section.
func NewRateLimiterFromConfig(c *conf.RateLimit, logger log.Logger) (*RateLimiter, error) {
	return NewRateLimiter(c.MaxRequests, c.Window.AsDuration(),
		WithMaxKeys(c.MaxKeys),
		WithLogger(logger),
	)
}
