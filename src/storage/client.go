package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
	"go.uber.org/zap"

	"foliomedia/src/config"
)

// ErrExists is returned when an object is already stored and upsert is off
var ErrExists = errors.New("object already exists")

// Object is a single file destined for a bucket
type Object struct {
	Bucket      string
	Key         string
	ContentType string
	Data        []byte
}

// Client uploads objects to Supabase Storage
type Client struct {
	cfg     *config.Config
	api     *storage_go.Client
	log     *zap.SugaredLogger
	retries int
	backoff time.Duration
}

// NewClient creates a storage client for the configured project
func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	headers := map[string]string{
		"apikey": cfg.Key(),
	}

	return &Client{
		cfg:     cfg,
		api:     storage_go.NewClient(cfg.StorageURL(), cfg.Key(), headers),
		log:     log,
		retries: cfg.Upload.Retries,
		backoff: cfg.Upload.Backoff,
	}
}

// Upload sends one object with a POST to /storage/v1/object/<bucket>/<key>.
// Transient failures are retried with exponential backoff.
func (c *Client) Upload(ctx context.Context, obj Object) error {
	contentType := obj.ContentType
	upsert := *c.cfg.Upload.Upsert
	opts := storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}
	if c.cfg.Upload.CacheControl != "" {
		cacheControl := c.cfg.Upload.CacheControl
		opts.CacheControl = &cacheControl
	}

	attempt := 0
	return Retry(ctx, c.retries, c.backoff, func() error {
		attempt++
		if attempt > 1 {
			c.log.Debugf("🔁 Retrying %s/%s (attempt %d)", obj.Bucket, obj.Key, attempt)
		}

		_, err := c.api.UploadFile(obj.Bucket, obj.Key, bytes.NewReader(obj.Data), opts)
		if err == nil {
			return nil
		}
		if isDuplicate(err) {
			return Permanent(fmt.Errorf("%s/%s: %w", obj.Bucket, obj.Key, ErrExists))
		}
		err = fmt.Errorf("upload %s/%s: %w", obj.Bucket, obj.Key, err)
		if isPermanent(err) {
			return Permanent(err)
		}
		return err
	})
}

// PublicURL returns where an uploaded object is served from
func (c *Client) PublicURL(bucket, key string) string {
	return c.cfg.PublicURL(bucket, key)
}

// EnsureBucket creates a bucket if it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context, name string, public bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if bucket, err := c.api.GetBucket(name); err == nil && bucket.Name == name {
		c.log.Debugf("Bucket exists: %s", name)
		return nil
	}

	_, err := c.api.CreateBucket(name, storage_go.BucketOptions{Public: public})
	if err != nil {
		if isDuplicate(err) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}

	c.log.Infof("📦 Created bucket: %s", name)
	return nil
}

// isDuplicate recognizes the storage API's conflict response, which storage-go
// surfaces only as an error message.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "already exists")
}

// permanentMessages are storage API failures that no retry can fix
var permanentMessages = []string{
	"invalid jwt",
	"jwt expired",
	"invalid signature",
	"bucket not found",
	"payload too large",
	"exceeded the maximum allowed size",
	"row-level security",
	"invalid key",
	"mime type",
}

// isPermanent reports whether err is a client error that retrying cannot fix.
// Timeouts and rate limiting stay retryable.
func isPermanent(err error) bool {
	var se *storage_go.StorageError
	if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
		return se.Status != http.StatusRequestTimeout && se.Status != http.StatusTooManyRequests
	}

	msg := strings.ToLower(err.Error())
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
