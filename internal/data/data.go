// Package data provides data access layer implementations.
// It owns the storage backends behind the upload queue, the shared rate limiter
// and the HTTP uploader that delivers queued images.
package data

import (
	"fmt"

	"TryOn/internal/biz"
	"TryOn/internal/conf"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewKVStore,
	NewAdmission,
	NewHTTPUploader,
	wire.Bind(new(biz.Uploader), new(*HTTPUploader)),
)

// Data contains all data layer dependencies.
// Connections are opened only for the backends selected in the configuration,
// so either client may be nil.
type Data struct {
	rdb *redis.Client
	db  *gorm.DB
}

// NewData opens the connections required by the selected upload store and
// rate limit backend.
func NewData(c *conf.Data, upload *conf.Upload, rl *conf.RateLimit, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	var (
		d        = &Data{}
		cleanups []func()
	)
	cleanup := func() {
		helper.Infow("msg", "closing the data resources")
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if upload.Store == conf.BackendRedis || rl.Backend == conf.BackendRedis {
		rdb, redisCleanup, err := NewRedisClient(c, logger)
		if err != nil {
			redisCleanup()
			cleanup()
			return nil, nil, err
		}
		if rdb == nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis backend selected but data.redis.addr is empty")
		}
		d.rdb = rdb
		cleanups = append(cleanups, redisCleanup)
	}

	if upload.Store == conf.BackendMySQL {
		db, mysqlCleanup, err := NewMySQLClient(c, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		d.db = db
		cleanups = append(cleanups, mysqlCleanup)
	}

	return d, cleanup, nil
}

// NewKVStore returns the key-value store selected by upload.store.
func NewKVStore(d *Data, c *conf.Upload, logger log.Logger) (biz.KVStore, error) {
	helper := pkglog.NewLogHelper(logger)
	helper.Store("upload queue store selected", "store", c.Store)

	switch c.Store {
	case conf.BackendMemory, "":
		helper.Warnw("msg", "upload queue uses the in-memory store, pending uploads are lost on restart")
		return NewMemoryStore(), nil
	case conf.BackendRedis:
		return NewRedisStore(d.rdb, logger), nil
	case conf.BackendMySQL:
		return NewMySQLStore(d.db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported upload store %q", c.Store)
	}
}

// NewAdmission returns the admission controller selected by ratelimit.backend.
// The in-process limiter is always built so that its reset endpoint stays available.
func NewAdmission(d *Data, c *conf.RateLimit, limiter *biz.RateLimiter, logger log.Logger) (biz.Admission, error) {
	switch c.Backend {
	case conf.BackendMemory, "":
		return limiter, nil
	case conf.BackendRedis:
		return NewRedisRateLimiter(d.rdb, c.MaxRequests, c.Window.AsDuration(), logger)
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", c.Backend)
	}
}
