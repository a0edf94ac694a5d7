package broadcasts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// ImageKeyPrefix namespaces every broadcast image inside the bucket.
const ImageKeyPrefix = "broadcasts/"

const defaultImageURLTTL = 24 * time.Hour

var errStorageNotConfigured = errors.New("broadcast image storage is not configured")

// S3Storage keeps broadcast images under ImageKeyPrefix in one bucket and
// hands out presigned links that Telegram can fetch.
type S3Storage struct {
	client *minio.Client
	bucket string

	mu      sync.Mutex
	ensured bool
}

func NewS3Storage(client *minio.Client, bucket string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: strings.TrimSpace(bucket),
	}
}

// EnsureBucket creates the bucket on first use. Only success is remembered,
// so a failed check is retried by the next upload.
func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if !exists {
		err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("create bucket %q: %w", s.bucket, err)
		}
	}

	s.ensured = true
	return nil
}

func (s *S3Storage) PutImage(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if !isImageKey(key) || body == nil || size <= 0 {
		return fmt.Errorf("invalid broadcast image %q: %w", key, ErrValidation)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("unsupported image content type %q: %w", contentType, ErrValidation)
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "private, max-age=86400",
	})
	if err != nil {
		return fmt.Errorf("upload broadcast image %q: %w", key, err)
	}
	return nil
}

// PresignGet returns a temporary download link for a stored image. A zero ttl
// falls back to one day.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if !isImageKey(key) {
		return "", fmt.Errorf("invalid broadcast image %q: %w", key, ErrValidation)
	}
	if ttl <= 0 {
		ttl = defaultImageURLTTL
	}

	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign broadcast image %q: %w", key, err)
	}
	return link.String(), nil
}

// Delete is a no-op for jobs without an image or when storage is disabled.
// Keys outside ImageKeyPrefix are never removed.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if s.client == nil || key == "" {
		return nil
	}
	if !isImageKey(key) {
		return fmt.Errorf("refusing to delete %q: %w", key, ErrValidation)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete broadcast image %q: %w", key, err)
	}
	return nil
}

func (s *S3Storage) ready() error {
	if s.client == nil || s.bucket == "" {
		return errStorageNotConfigured
	}
	return nil
}

func isImageKey(key string) bool {
	return strings.HasPrefix(key, ImageKeyPrefix) && len(key) > len(ImageKeyPrefix) && !strings.Contains(key, "..")
}
