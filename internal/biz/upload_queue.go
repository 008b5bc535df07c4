package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// MaxQueueSize is the maximum number of pending uploads.
	MaxQueueSize = 50
	// QueueStorageKey is the key under which the queue blob is persisted.
	QueueStorageKey = "upload_queue"
	// QueuedAtLayout formats queuedAt timestamps with millisecond precision.
	QueuedAtLayout = "2006-01-02T15:04:05.000Z07:00"
	// CommitTimeout bounds the rewrite that ends a ProcessQueue pass. The rewrite ignores
	// cancellation of the pass context so that delivered items are always dropped.
	CommitTimeout = 10 * time.Second
)

// Error reasons reported by the upload queue.
const (
	ReasonQueueFull     = "UPLOAD_QUEUE_FULL"
	ReasonInvalidUpload = "INVALID_UPLOAD"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue already holds MaxQueueSize items.
	ErrQueueFull = errors.Conflict(ReasonQueueFull, fmt.Sprintf("upload queue is full (max %d items)", MaxQueueSize))
	// ErrInvalidUpload is returned by Enqueue when the payload breaks the QueuedUpload contract.
	ErrInvalidUpload = errors.BadRequest(ReasonInvalidUpload, "upload payload is invalid")
)

var validate = validator.New()

// QueuedUpload is one pending binary upload. The JSON form is the persisted format.
type QueuedUpload struct {
	ID       string `json:"id" validate:"required"`
	ImageURI string `json:"imageUri" validate:"required"`
	Category string `json:"category" validate:"required"`
	Width    int    `json:"width" validate:"gt=0"`
	Height   int    `json:"height" validate:"gt=0"`
	QueuedAt string `json:"queuedAt" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// storedUpload mirrors QueuedUpload with pointer fields so that null fields can be told
// apart from zero values when reading the blob back.
type storedUpload struct {
	ID       *string `validate:"required"`
	ImageURI *string `validate:"required"`
	Category *string `validate:"required"`
	Width    *int    `validate:"required"`
	Height   *int    `validate:"required"`
	QueuedAt *string `validate:"required"`
}

// NewQueuedUpload builds an upload with a fresh UUID and a queuedAt stamp taken from now.
func NewQueuedUpload(imageURI, category string, width, height int, now time.Time) QueuedUpload {
	return QueuedUpload{
		ID:       uuid.NewString(),
		ImageURI: imageURI,
		Category: category,
		Width:    width,
		Height:   height,
		QueuedAt: now.UTC().Format(QueuedAtLayout),
	}
}

// KVStore is a string key-value store. The queue treats it as a black box; errors are
// systemic failures and are returned to the caller unchanged in meaning.
type KVStore interface {
	// Get returns the value under key; ok is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// UploadFunc uploads one item. A nil error means the item was delivered.
// Retry and timeout policy belongs to the implementation, not to the queue.
type UploadFunc func(ctx context.Context, item QueuedUpload) error

// Uploader delivers queued items; its Upload method is used as the UploadFunc of a pass.
type Uploader interface {
	Upload(ctx context.Context, item QueuedUpload) error
}

// UploadQueue is a FIFO queue of pending uploads persisted as one JSON array in a KVStore.
//
// Delivery is at-least-once: the blob is rewritten once after a full ProcessQueue pass,
// so a crash mid-pass replays items that were already delivered.
// One UploadQueue instance must own its storage key.
type UploadQueue struct {
	store  KVStore
	key    string
	logger *log.Helper

	// mu guards every read-modify-write of the blob.
	mu         sync.Mutex
	generation uint64
	// passMu serializes ProcessQueue passes.
	passMu sync.Mutex
}

// NewUploadQueue creates a queue persisted under QueueStorageKey.
func NewUploadQueue(store KVStore, logger log.Logger) *UploadQueue {
	return &UploadQueue{
		store:  store,
		key:    QueueStorageKey,
		logger: log.NewHelper(logger),
	}
}

// Enqueue appends item to the end of the queue.
func (q *UploadQueue) Enqueue(ctx context.Context, item QueuedUpload) error {
	if err := validate.Struct(item); err != nil {
		return ErrInvalidUpload.WithCause(err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return err
	}
	if len(items) >= MaxQueueSize {
		q.logger.Warnw("msg", "upload queue is full, rejecting item",
			"upload_id", item.ID,
			"length", len(items))
		return ErrQueueFull
	}

	items = append(items, item)
	if err := q.save(ctx, items); err != nil {
		return err
	}

	q.logger.Debugw("msg", "upload queued",
		"upload_id", item.ID,
		"category", item.Category,
		"length", len(items))

	return nil
}

// ProcessQueue makes one delivery attempt per queued item, in FIFO order and strictly one
// at a time. Delivered items are dropped; failed items stay queued in their original
// relative order for the next pass. It returns the number of delivered items.
//
// Per-item failures never fail the pass; only store errors are returned.
func (q *UploadQueue) ProcessQueue(ctx context.Context, upload UploadFunc) (int, error) {
	q.passMu.Lock()
	defer q.passMu.Unlock()

	q.mu.Lock()
	items, err := q.load(ctx)
	generation := q.generation
	q.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	failed := make([]QueuedUpload, 0, len(items))
	processed := 0
	for _, item := range items {
		if err := q.attempt(ctx, upload, item); err != nil {
			q.logger.Warnw("msg", "upload attempt failed, keeping item queued",
				"upload_id", item.ID,
				"error", err)
			failed = append(failed, item)
			continue
		}
		processed++
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CommitTimeout)
	defer cancel()

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(commitCtx)
	if err != nil {
		return processed, err
	}

	var remaining []QueuedUpload
	if q.generation != generation {
		// Cleared during the pass: only items enqueued after the clear survive.
		remaining = current
	} else {
		remaining = failed
		if len(current) > len(items) {
			remaining = append(remaining, current[len(items):]...)
		}
	}

	if err := q.save(commitCtx, remaining); err != nil {
		return processed, err
	}

	q.logger.Infow("msg", "upload queue pass completed",
		"attempted", len(items),
		"processed", processed,
		"failed", len(failed),
		"remaining", len(remaining))

	return processed, nil
}

// Length returns the number of valid queued items.
func (q *UploadQueue) Length(ctx context.Context) (int, error) {
	items, err := q.Items(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Items returns a snapshot of the valid queued items in FIFO order.
func (q *UploadQueue) Items(ctx context.Context) ([]QueuedUpload, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.load(ctx)
}

// Clear deletes the persisted queue.
func (q *UploadQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Remove(ctx, q.key); err != nil {
		return fmt.Errorf("clear upload queue: %w", err)
	}
	q.generation++

	q.logger.Infow("msg", "upload queue cleared")
	return nil
}

// attempt runs upload for one item, converting a panic into a failure.
func (q *UploadQueue) attempt(ctx context.Context, upload UploadFunc, item QueuedUpload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload %s panicked: %v", item.ID, r)
		}
	}()
	return upload(ctx, item)
}

// load reads and validates the persisted queue. Corrupt content degrades to an empty or
// shorter queue; only store errors are returned.
func (q *UploadQueue) load(ctx context.Context) ([]QueuedUpload, error) {
	raw, ok, err := q.store.Get(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("read upload queue: %w", err)
	}
	if !ok {
		return []QueuedUpload{}, nil
	}
	return q.decode(raw), nil
}

func (q *UploadQueue) decode(raw string) []QueuedUpload {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		q.logger.Debugw("msg", "upload queue blob is not a JSON array, treating as empty", "error", err)
		return []QueuedUpload{}
	}

	items := make([]QueuedUpload, 0, len(elems))
	for i, elem := range elems {
		item, err := decodeUpload(elem)
		if err != nil {
			q.logger.Debugw("msg", "dropping invalid queued upload", "index", i, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

func (q *UploadQueue) save(ctx context.Context, items []QueuedUpload) error {
	if items == nil {
		items = []QueuedUpload{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode upload queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("write upload queue: %w", err)
	}
	return nil
}

// decodeUpload checks that elem is an object carrying all six fields under their exact
// names and with their primitive types. Values are not range-checked here.
func decodeUpload(elem json.RawMessage) (QueuedUpload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		return QueuedUpload{}, err
	}

	var s storedUpload
	targets := []struct {
		name string
		dest interface{}
	}{
		{"id", &s.ID},
		{"imageUri", &s.ImageURI},
		{"category", &s.Category},
		{"width", &s.Width},
		{"height", &s.Height},
		{"queuedAt", &s.QueuedAt},
	}
	for _, target := range targets {
		raw, ok := fields[target.name]
		if !ok {
			return QueuedUpload{}, fmt.Errorf("missing field %q", target.name)
		}
		if err := json.Unmarshal(raw, target.dest); err != nil {
			return QueuedUpload{}, fmt.Errorf("field %q: %w", target.name, err)
		}
	}
	if err := validate.Struct(s); err != nil {
		return QueuedUpload{}, err
	}

	return QueuedUpload{
		ID:       *s.ID,
		ImageURI: *s.ImageURI,
		Category: *s.Category,
		Width:    *s.Width,
		Height:   *s.Height,
		QueuedAt: *s.QueuedAt,
	}, nil
}
