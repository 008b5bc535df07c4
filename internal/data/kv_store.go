package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	dberrors "TryOn/pkg/errors"
	pkglog "TryOn/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryStore keeps values in process memory. Values are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements biz.KVStore.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements biz.KVStore.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove implements biz.KVStore.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// RedisStore keeps values as plain Redis strings.
type RedisStore struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRedisStore creates a store on top of rdb.
func NewRedisStore(rdb *redis.Client, logger log.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Get implements biz.KVStore. A missing key is reported with ok=false.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.rdb == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}

	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements biz.KVStore. Values never expire.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Remove implements biz.KVStore. Removing a missing key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.logger.Debugw("msg", "redis key removed", "key", key, "deleted", n)
	return nil
}

// kvEntry is one row of the MySQL key-value table.
type kvEntry struct {
	StorageKey string    `gorm:"column:storage_key;primaryKey;type:varchar(191)"`
	Value      string    `gorm:"column:value;type:longtext;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName overrides the GORM default.
func (kvEntry) TableName() string {
	return "kv_entries"
}

// maxWriteAttempts bounds how often an upsert is sent when MySQL reports a
// lock conflict or a dropped connection.
const maxWriteAttempts = 3

// MySQLStore keeps values in the kv_entries table, one row per key.
type MySQLStore struct {
	db     *gorm.DB
	logger *pkglog.LogHelper
	now    func() time.Time
}

// NewMySQLStore creates a store on top of db.
func NewMySQLStore(db *gorm.DB, logger log.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: pkglog.NewLogHelper(logger),
		now:    time.Now,
	}
}

// Get implements biz.KVStore.
func (s *MySQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry kvEntry
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&entry).Error
	if err != nil {
		if dberrors.IsNotFoundError(err) {
			return "", false, nil
		}
		return "", false, dberrors.ClassifyDBError(err)
	}
	return entry.Value, true, nil
}

// Set implements biz.KVStore with an upsert on the primary key. The upsert is
// idempotent, so transient failures are sent again.
func (s *MySQLStore) Set(ctx context.Context, key, value string) error {
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err = s.upsert(ctx, key, value); err == nil {
			return nil
		}
		if !dberrors.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		s.logger.Store("kv write hit a transient error, retrying",
			"key", key,
			"attempt", attempt,
			"error", err)
	}

	dbErr := dberrors.ClassifyDBError(err)
	s.logger.Errorw("msg", "failed to write kv entry",
		"key", key,
		"error_type", dbErr.Type.String(),
		"retryable", dbErr.Retryable(),
		"error", err)
	return dbErr
}

func (s *MySQLStore) upsert(ctx context.Context, key, value string) error {
	entry := kvEntry{
		StorageKey: key,
		Value:      value,
		UpdatedAt:  s.now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove implements biz.KVStore.
func (s *MySQLStore) Remove(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&kvEntry{}).Error
	if err != nil {
		return dberrors.ClassifyDBError(err)
	}
	return nil
}
