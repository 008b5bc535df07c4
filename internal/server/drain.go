package server

import (
	"context"
	"fmt"
	"time"

	"TryOn/internal/biz"
	"TryOn/internal/conf"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// DrainTimeout bounds a single scheduled queue pass.
const DrainTimeout = 10 * time.Minute

// DrainServer periodically runs ProcessQueue with the configured uploader.
// It implements transport.Server so the Kratos app starts and stops it with the HTTP server.
type DrainServer struct {
	cron     *cron.Cron
	schedule string
	queue    *biz.UploadQueue
	uploader biz.Uploader
	logger   *pkglog.LogHelper
}

// NewDrainServer registers the drain job on c.DrainSchedule (seconds field first).
// An empty schedule yields a server whose Start and Stop do nothing.
func NewDrainServer(c *conf.Upload, queue *biz.UploadQueue, uploader biz.Uploader, logger log.Logger) (*DrainServer, error) {
	s := &DrainServer{
		queue:    queue,
		uploader: uploader,
		logger:   pkglog.NewLogHelper(logger),
	}
	if c == nil || c.DrainSchedule == "" {
		return s, nil
	}

	s.schedule = c.DrainSchedule
	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(c.DrainSchedule, s.drain); err != nil {
		return nil, fmt.Errorf("register drain job %q: %w", c.DrainSchedule, err)
	}
	return s, nil
}

// Start implements transport.Server.
func (s *DrainServer) Start(_ context.Context) error {
	if s.cron == nil {
		s.logger.Drain("periodic upload drain disabled")
		return nil
	}
	s.cron.Start()
	s.logger.Drain("periodic upload drain started", "schedule", s.schedule)
	return nil
}

// Stop implements transport.Server. It waits for a running pass to finish or ctx to expire.
func (s *DrainServer) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Drain("periodic upload drain stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs one pass. Overlapping runs queue up behind the pass lock of the queue.
func (s *DrainServer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	start := time.Now()
	processed, err := s.queue.ProcessQueue(ctx, s.uploader.Upload)
	if err != nil {
		s.logger.Errorw("msg", "scheduled upload drain failed", "type", "drain", "error", err)
		return
	}

	remaining, err := s.queue.Length(ctx)
	if err != nil {
		s.logger.Errorw("msg", "read upload queue after drain", "type", "drain", "error", err)
		return
	}

	if processed == 0 && remaining == 0 {
		return
	}
	s.logger.Drain("scheduled upload drain completed",
		"processed", processed,
		"remaining", remaining,
		"duration_ms", time.Since(start).Milliseconds())
}
