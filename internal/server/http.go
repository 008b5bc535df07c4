package server

import (
	v1 "TryOn/api/v1"
	"TryOn/internal/biz"
	"TryOn/internal/conf"
	"TryOn/internal/server/middleware"
	"TryOn/internal/service"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, rl *conf.RateLimit, uploadService *service.UploadService, admission biz.Admission, logger log.Logger) (*http.Server, error) {
	logHelper := pkglog.NewLogHelper(logger)

	var trustedProxies []string
	if c.HTTP != nil {
		trustedProxies = c.HTTP.TrustedProxies
	}
	clients, err := middleware.NewClientResolver(trustedProxies, rl.APIKeys)
	if err != nil {
		return nil, err
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(clients, logHelper),
			middleware.RateLimit(admission, clients, logHelper),
		),
	}
	if c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, http.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout != nil {
			opts = append(opts, http.Timeout(c.HTTP.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	v1.RegisterUploadHTTPServer(srv, uploadService)

	return srv, nil
}
