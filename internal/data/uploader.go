package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"TryOn/internal/biz"
	"TryOn/internal/conf"
	"TryOn/pkg/httpclient"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kratos/kratos/v2/log"
)

// ErrUploaderDisabled is returned for every item when no upload endpoint is configured,
// so that the queue keeps all pending uploads.
var ErrUploaderDisabled = errors.New("upload endpoint is not configured")

// ErrImageOutsideRoot is returned when an image uri resolves outside the configured
// image root. Such items are never sent.
var ErrImageOutsideRoot = errors.New("image path is outside the image root")

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 512

// UploadStatusError reports a non-2xx response from the upload endpoint.
type UploadStatusError struct {
	StatusCode int
	Body       string
}

func (e *UploadStatusError) Error() string {
	return fmt.Sprintf("upload endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *UploadStatusError) Temporary() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// HTTPUploader posts queued images to the configured endpoint as multipart forms.
type HTTPUploader struct {
	endpoint        string
	imageRoot       string
	client          *http.Client
	maxRetries      int
	initialInterval time.Duration
	logger          *log.Helper
}

// NewHTTPUploader creates the uploader from the upload section.
func NewHTTPUploader(c *conf.Upload, logger log.Logger) (*HTTPUploader, error) {
	helper := log.NewHelper(logger)

	client, err := httpclient.New(c.ProxyURL, c.Timeout.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create upload client: %w", err)
	}

	if c.Endpoint == "" {
		helper.Warnw("msg", "upload endpoint is not configured, queued uploads will be kept")
	} else if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid upload endpoint: %w", err)
	}

	if c.ImageRoot == "" {
		return nil, errors.New("upload image root is not configured")
	}
	root, err := filepath.Abs(c.ImageRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid upload image root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	} else {
		helper.Warnw("msg", "upload image root is not readable yet", "image_root", root, "error", err)
	}

	return &HTTPUploader{
		endpoint:        c.Endpoint,
		imageRoot:       root,
		client:          client,
		maxRetries:      c.MaxRetries,
		initialInterval: c.InitialInterval.AsDuration(),
		logger:          helper,
	}, nil
}

// Upload delivers one item. Transient failures are retried with exponential backoff
// before the item is reported as failed.
func (u *HTTPUploader) Upload(ctx context.Context, item biz.QueuedUpload) error {
	if u.endpoint == "" {
		return ErrUploaderDisabled
	}

	path, err := localPath(u.imageRoot, item.ImageURI)
	if err != nil {
		u.logger.Warnw("msg", "upload image rejected",
			"upload_id", item.ID,
			"image_uri", item.ImageURI,
			"error", err)
		return err
	}
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image for upload %s: %w", item.ID, err)
	}

	eb := backoff.NewExponentialBackOff()
	if u.initialInterval > 0 {
		eb.InitialInterval = u.initialInterval
	}
	var b backoff.BackOff = eb
	if u.maxRetries >= 0 {
		b = backoff.WithMaxRetries(eb, uint64(u.maxRetries))
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := u.post(ctx, item, filepath.Base(path), image)
		var statusErr *UploadStatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		u.logger.Warnw("msg", "upload attempt failed, retrying",
			"upload_id", item.ID,
			"attempt", attempt,
			"next_retry_in", next.String(),
			"error", err)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("upload %s failed after %d attempt(s): %w", item.ID, attempt, err)
	}

	u.logger.Infow("msg", "image uploaded",
		"upload_id", item.ID,
		"category", item.Category,
		"bytes", len(image),
		"attempts", attempt)
	return nil
}

func (u *HTTPUploader) post(ctx context.Context, item biz.QueuedUpload, filename string, image []byte) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := [][2]string{
		{"id", item.ID},
		{"category", item.Category},
		{"width", strconv.Itoa(item.Width)},
		{"height", strconv.Itoa(item.Height)},
		{"queued_at", item.QueuedAt},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to encode form: %w", err))
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode form: %w", err))
	}
	if _, err := part.Write(image); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode form: %w", err))
	}
	if err := w.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build upload request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Idempotency-Key", item.ID)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UploadStatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
}

// localPath resolves a file:// URI or a bare filesystem path against root.
// Relative paths are joined to root. The cleaned result, with symlinks followed
// when the file exists, must stay inside root.
func localPath(root, imageURI string) (string, error) {
	parsed, err := url.Parse(imageURI)
	if err != nil {
		return "", fmt.Errorf("invalid image uri %q: %w", imageURI, err)
	}

	var p string
	switch parsed.Scheme {
	case "file":
		if parsed.Path == "" {
			return "", fmt.Errorf("invalid image uri %q: empty path", imageURI)
		}
		p = parsed.Path
	case "":
		p = imageURI
	default:
		return "", fmt.Errorf("unsupported image uri scheme %q", parsed.Scheme)
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", fmt.Errorf("%w: %s", ErrImageOutsideRoot, imageURI)
	}

	resolved, err := filepath.EvalSymlinks(p)
	switch {
	case err == nil:
		if !within(root, resolved) {
			return "", fmt.Errorf("%w: %s", ErrImageOutsideRoot, imageURI)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to resolve image path %q: %w", imageURI, err)
	}
	return p, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
