package data

import (
	"testing"
	"time"

	"TryOn/internal/biz"
	"TryOn/internal/conf"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func rateLimitConf(backend string) *conf.RateLimit {
	return &conf.RateLimit{
		Backend:     backend,
		MaxRequests: 10,
		Window:      durationpb.New(time.Minute),
		MaxKeys:     128,
	}
}

func newBizLimiter(t *testing.T) *biz.RateLimiter {
	t.Helper()
	limiter, err := biz.NewRateLimiterFromConfig(rateLimitConf(conf.BackendMemory), log.DefaultLogger)
	require.NoError(t, err)
	return limiter
}

func TestNewData_MemoryBackends(t *testing.T) {
	d, cleanup, err := NewData(&conf.Data{}, &conf.Upload{Store: conf.BackendMemory}, rateLimitConf(conf.BackendMemory), log.DefaultLogger)
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, d.rdb)
	assert.Nil(t, d.db)

	store, err := NewKVStore(d, &conf.Upload{Store: conf.BackendMemory}, log.DefaultLogger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	limiter := newBizLimiter(t)
	admission, err := NewAdmission(d, rateLimitConf(conf.BackendMemory), limiter, log.DefaultLogger)
	require.NoError(t, err)
	assert.Same(t, limiter, admission)
}

func TestNewData_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	upload := &conf.Upload{Store: conf.BackendRedis}
	rl := rateLimitConf(conf.BackendRedis)
	d, cleanup, err := NewData(redisConf(mr.Addr()), upload, rl, log.DefaultLogger)
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, d.rdb)
	assert.Nil(t, d.db)

	store, err := NewKVStore(d, upload, log.DefaultLogger)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	admission, err := NewAdmission(d, rl, newBizLimiter(t), log.DefaultLogger)
	require.NoError(t, err)
	assert.IsType(t, &RedisRateLimiter{}, admission)
}

func TestNewData_RedisWithoutAddress(t *testing.T) {
	_, _, err := NewData(&conf.Data{}, &conf.Upload{Store: conf.BackendRedis}, rateLimitConf(conf.BackendMemory), log.DefaultLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.redis.addr is empty")
}

func TestNewData_MySQLWithoutSource(t *testing.T) {
	_, _, err := NewData(&conf.Data{}, &conf.Upload{Store: conf.BackendMySQL}, rateLimitConf(conf.BackendMemory), log.DefaultLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database configuration is required")
}

func TestNewKVStore_Unsupported(t *testing.T) {
	_, err := NewKVStore(&Data{}, &conf.Upload{Store: "sqlite"}, log.DefaultLogger)
	assert.Error(t, err)
}

func TestNewAdmission_Unsupported(t *testing.T) {
	_, err := NewAdmission(&Data{}, rateLimitConf("memcached"), newBizLimiter(t), log.DefaultLogger)
	assert.Error(t, err)
}
