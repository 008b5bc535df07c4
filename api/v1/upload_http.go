package v1

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names reported to middleware through transport.Transporter.
const (
	OperationUploadEnqueueUpload  = "/tryon.v1.Upload/EnqueueUpload"
	OperationUploadListUploads    = "/tryon.v1.Upload/ListUploads"
	OperationUploadProcessUploads = "/tryon.v1.Upload/ProcessUploads"
	OperationUploadClearUploads   = "/tryon.v1.Upload/ClearUploads"
	OperationUploadGetRateLimit   = "/tryon.v1.Upload/GetRateLimit"
	OperationUploadResetRateLimit = "/tryon.v1.Upload/ResetRateLimit"
)

// UploadHTTPServer is the server API of the upload queue and rate limiter endpoints.
type UploadHTTPServer interface {
	EnqueueUpload(context.Context, *EnqueueUploadRequest) (*EnqueueUploadReply, error)
	ListUploads(context.Context, *ListUploadsRequest) (*ListUploadsReply, error)
	ProcessUploads(context.Context, *ProcessUploadsRequest) (*ProcessUploadsReply, error)
	ClearUploads(context.Context, *ClearUploadsRequest) (*ClearUploadsReply, error)
	GetRateLimit(context.Context, *GetRateLimitRequest) (*GetRateLimitReply, error)
	ResetRateLimit(context.Context, *ResetRateLimitRequest) (*ResetRateLimitReply, error)
}

// RegisterUploadHTTPServer mounts the routes of srv on s.
func RegisterUploadHTTPServer(s *http.Server, srv UploadHTTPServer) {
	r := s.Route("/")
	r.POST("/v1/uploads", route(OperationUploadEnqueueUpload, true, srv.EnqueueUpload))
	r.GET("/v1/uploads", route(OperationUploadListUploads, false, srv.ListUploads))
	r.POST("/v1/uploads/process", route(OperationUploadProcessUploads, false, srv.ProcessUploads))
	r.DELETE("/v1/uploads", route(OperationUploadClearUploads, false, srv.ClearUploads))
	r.GET("/v1/ratelimit", route(OperationUploadGetRateLimit, false, srv.GetRateLimit))
	r.POST("/v1/ratelimit/reset", route(OperationUploadResetRateLimit, false, srv.ResetRateLimit))
}

// route adapts a typed handler to a Kratos HTTP handler that runs the server middleware chain.
func route[Req any, Reply any](operation string, bindBody bool, handle func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if bindBody {
			if err := ctx.Bind(&in); err != nil {
				return err
			}
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return handle(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Reply))
	}
}
