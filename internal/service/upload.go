package service

import (
	"context"
	"time"

	v1 "TryOn/api/v1"
	"TryOn/internal/biz"
	"TryOn/internal/conf"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// ReasonStoreUnavailable is reported when the queue store fails.
const ReasonStoreUnavailable = "STORE_UNAVAILABLE"

// UploadService implements v1.UploadHTTPServer on top of the upload queue and the rate limiter.
type UploadService struct {
	queue     *biz.UploadQueue
	limiter   *biz.RateLimiter
	admission biz.Admission
	rl        *conf.RateLimit
	uploader  biz.Uploader
	logger    *pkglog.LogHelper
	now       func() time.Time
}

var _ v1.UploadHTTPServer = (*UploadService)(nil)

// NewUploadService creates a new UploadService.
func NewUploadService(queue *biz.UploadQueue, limiter *biz.RateLimiter, admission biz.Admission, rl *conf.RateLimit, uploader biz.Uploader, logger log.Logger) *UploadService {
	return &UploadService{
		queue:     queue,
		limiter:   limiter,
		admission: admission,
		rl:        rl,
		uploader:  uploader,
		logger:    pkglog.NewLogHelper(logger),
		now:       time.Now,
	}
}

// EnqueueUpload queues one image for upload.
func (s *UploadService) EnqueueUpload(ctx context.Context, req *v1.EnqueueUploadRequest) (*v1.EnqueueUploadReply, error) {
	item := biz.QueuedUpload{
		ID:       req.ID,
		ImageURI: req.ImageURI,
		Category: req.Category,
		Width:    req.Width,
		Height:   req.Height,
		QueuedAt: req.QueuedAt,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.QueuedAt == "" {
		item.QueuedAt = s.now().UTC().Format(biz.QueuedAtLayout)
	}

	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, s.storeError(ctx, "enqueue", err)
	}

	length, err := s.queue.Length(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "enqueue", err)
	}

	s.logger.Queue("upload queued",
		"request_id", pkglog.GetRequestID(ctx),
		"upload_id", item.ID,
		"category", item.Category,
		"length", length)

	return &v1.EnqueueUploadReply{ID: item.ID, Length: length}, nil
}

// ListUploads returns the pending uploads in FIFO order.
func (s *UploadService) ListUploads(ctx context.Context, _ *v1.ListUploadsRequest) (*v1.ListUploadsReply, error) {
	items, err := s.queue.Items(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "list", err)
	}

	reply := &v1.ListUploadsReply{
		Length: len(items),
		Items:  make([]*v1.QueuedUpload, 0, len(items)),
	}
	for _, item := range items {
		reply.Items = append(reply.Items, &v1.QueuedUpload{
			ID:       item.ID,
			ImageURI: item.ImageURI,
			Category: item.Category,
			Width:    item.Width,
			Height:   item.Height,
			QueuedAt: item.QueuedAt,
		})
	}
	return reply, nil
}

// ProcessUploads runs one queue pass with the configured uploader.
func (s *UploadService) ProcessUploads(ctx context.Context, _ *v1.ProcessUploadsRequest) (*v1.ProcessUploadsReply, error) {
	processed, err := s.queue.ProcessQueue(ctx, s.uploader.Upload)
	if err != nil {
		return nil, s.storeError(ctx, "process", err)
	}

	remaining, err := s.queue.Length(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "process", err)
	}

	s.logger.Success("upload queue processed",
		"request_id", pkglog.GetRequestID(ctx),
		"processed", processed,
		"remaining", remaining)

	return &v1.ProcessUploadsReply{Processed: processed, Remaining: remaining}, nil
}

// ClearUploads drops every pending upload.
func (s *UploadService) ClearUploads(ctx context.Context, _ *v1.ClearUploadsRequest) (*v1.ClearUploadsReply, error) {
	if err := s.queue.Clear(ctx); err != nil {
		return nil, s.storeError(ctx, "clear", err)
	}
	s.logger.Queue("upload queue cleared", "request_id", pkglog.GetRequestID(ctx))
	return &v1.ClearUploadsReply{}, nil
}

// GetRateLimit reports the limiter configuration and the caller's usage of its window.
func (s *UploadService) GetRateLimit(ctx context.Context, _ *v1.GetRateLimitRequest) (*v1.GetRateLimitReply, error) {
	backend := s.rl.Backend
	if backend == "" {
		backend = conf.BackendMemory
	}
	reply := &v1.GetRateLimitReply{
		Backend:     backend,
		MaxRequests: s.limiter.MaxRequests(),
		WindowMs:    s.limiter.Window().Milliseconds(),
		TrackedKeys: s.limiter.Len(),
	}

	clientKey := pkglog.GetRequestContext(ctx).ClientKey
	if counter, ok := s.admission.(biz.WindowCounter); ok && clientKey != "" {
		used, err := counter.Count(ctx, clientKey)
		if err != nil {
			s.logger.RateLimit("failed to read rate limit window",
				"request_id", pkglog.GetRequestID(ctx),
				"client_key", clientKey,
				"error", err)
		} else {
			reply.Used = used
		}
	}

	return reply, nil
}

// ResetRateLimit forgets the request history of every key held in process.
func (s *UploadService) ResetRateLimit(ctx context.Context, _ *v1.ResetRateLimitRequest) (*v1.ResetRateLimitReply, error) {
	tracked := s.limiter.Len()
	s.limiter.Reset()
	s.logger.RateLimit("rate limiter reset",
		"request_id", pkglog.GetRequestID(ctx),
		"dropped_keys", tracked)
	return &v1.ResetRateLimitReply{}, nil
}

// storeError passes Kratos errors through and maps anything else to 500 STORE_UNAVAILABLE.
func (s *UploadService) storeError(ctx context.Context, op string, err error) error {
	var se *errors.Error
	if errors.As(err, &se) {
		return err
	}
	s.logger.Errorw("msg", "upload queue store failed",
		"request_id", pkglog.GetRequestID(ctx),
		"op", op,
		"error", err)
	return errors.InternalServer(ReasonStoreUnavailable, "upload queue store is unavailable").WithCause(err)
}
