package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// SweepInterval is the minimum wall-clock time between two sweeps of expired keys.
	SweepInterval = 60 * time.Second
	// DefaultMaxKeys bounds the number of keys tracked when no explicit bound is configured.
	DefaultMaxKeys = 65536
)

// Admission decides whether the caller identified by key may act now.
// Implemented by RateLimiter (in-process) and data.RedisRateLimiter (shared).
type Admission interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WindowCounter reports how many requests of key fall inside the current window
// without recording a new one.
type WindowCounter interface {
	Count(ctx context.Context, key string) (int, error)
}

// RateLimiter implements sliding-window admission control per key.
//
// Each key keeps the millisecond timestamps of its admitted requests in chronological order.
// Timestamps older than the window are pruned lazily when the key is checked, and keys whose
// timestamps have all expired are swept at most once per SweepInterval, on the first Check
// after the interval elapses. No background goroutine is started.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	windowMs    int64
	windows     *lru.Cache[string, []int64]
	lastSweep   int64
	now         func() time.Time
	logger      *log.Helper
}

// RateLimiterOption customizes a RateLimiter.
type RateLimiterOption func(*rateLimiterOptions)

type rateLimiterOptions struct {
	now     func() time.Time
	maxKeys int
	logger  log.Logger
}

// WithClock replaces the wall-clock source (primarily for testing).
func WithClock(now func() time.Time) RateLimiterOption {
	return func(o *rateLimiterOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxKeys bounds the number of tracked keys. The least recently checked key is
// evicted when the bound is reached.
func WithMaxKeys(maxKeys int) RateLimiterOption {
	return func(o *rateLimiterOptions) {
		if maxKeys > 0 {
			o.maxKeys = maxKeys
		}
	}
}

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(logger log.Logger) RateLimiterOption {
	return func(o *rateLimiterOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRateLimiter creates a limiter admitting at most maxRequests per window for every key.
func NewRateLimiter(maxRequests int, window time.Duration, opts ...RateLimiterOption) (*RateLimiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("rate limiter: maxRequests must be positive, got %d", maxRequests)
	}
	if window.Milliseconds() <= 0 {
		return nil, fmt.Errorf("rate limiter: window must be at least 1ms, got %s", window)
	}

	o := &rateLimiterOptions{
		now:     time.Now,
		maxKeys: DefaultMaxKeys,
		logger:  log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(o)
	}

	windows, err := lru.New[string, []int64](o.maxKeys)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: new LRU store for keys: %w", err)
	}

	return &RateLimiter{
		maxRequests: maxRequests,
		windowMs:    window.Milliseconds(),
		windows:     windows,
		lastSweep:   o.now().UnixMilli(),
		now:         o.now,
		logger:      log.NewHelper(o.logger),
	}, nil
}

// MaxRequests returns the inclusive request ceiling per window.
func (l *RateLimiter) MaxRequests() int {
	return l.maxRequests
}

// Window returns the sliding window length.
func (l *RateLimiter) Window() time.Duration {
	return time.Duration(l.windowMs) * time.Millisecond
}

// Check reports whether key may act now and, if so, records the request.
// A rejected call is not counted, but the pruning it performed is kept.
func (l *RateLimiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UnixMilli()
	l.maybeSweep(now)

	stamps, _ := l.windows.Get(key)
	active := l.prune(stamps, now)

	if len(active) >= l.maxRequests {
		l.windows.Add(key, active)
		return false
	}

	l.windows.Add(key, append(active, now))
	return true
}

// Allow implements Admission. The in-process limiter never fails.
func (l *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.Check(key), nil
}

// Count implements WindowCounter. It neither records a request nor refreshes the key.
func (l *RateLimiter) Count(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps, _ := l.windows.Peek(key)
	return len(l.prune(stamps, l.now().UnixMilli())), nil
}

// Reset drops the state of every key.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows.Purge()
}

// Len returns the number of keys currently tracked.
func (l *RateLimiter) Len() int {
	return l.windows.Len()
}

// prune returns the suffix of stamps still inside the window ending at now.
// A timestamp t is expired when now-t >= window.
func (l *RateLimiter) prune(stamps []int64, now int64) []int64 {
	i := 0
	for i < len(stamps) && now-stamps[i] >= l.windowMs {
		i++
	}
	return stamps[i:]
}

// maybeSweep removes keys whose newest timestamp has expired, at most once per SweepInterval.
func (l *RateLimiter) maybeSweep(now int64) {
	if now-l.lastSweep < SweepInterval.Milliseconds() {
		return
	}
	l.lastSweep = now

	removed := 0
	for _, key := range l.windows.Keys() {
		stamps, ok := l.windows.Peek(key)
		if !ok {
			continue
		}
		if len(stamps) == 0 || now-stamps[len(stamps)-1] >= l.windowMs {
			l.windows.Remove(key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debugw("msg", "rate limiter sweep completed",
			"removed_keys", removed,
			"remaining_keys", l.windows.Len())
	}
}
