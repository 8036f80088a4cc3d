package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/platewise-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

const (
	pingTimeout    = 5 * time.Second
	bootRetries    = 3
	bootRetryBase  = 200 * time.Millisecond
	defaultPresign = 24 * time.Hour
	codeNoSuchKey  = "NoSuchKey"
	codeNoSuchObj  = "NoSuchObject"
)

// objectAPI is the subset of *minio.Client the gateway relies on.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

type fetchFunc func(ctx context.Context, bucket, key string) ([]byte, error)

// Client is the blob store gateway for uploaded photos.
type Client struct {
	api        objectAPI
	fetch      fetchFunc
	bucket     string
	presignTTL time.Duration
	sse        encrypt.ServerSide
	now        func() time.Time
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UploadResult describes a stored object and its first signed URL.
type UploadResult struct {
	Key         string
	Bucket      string
	Size        int64
	ContentType string
	URL         string
	ExpiresAt   time.Time
}

// ObjectInfo is returned by Head.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// New builds the minio-backed client and verifies the bucket is reachable,
// retrying transient network failures a few times.
func New(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket name is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	client := newClient(mc, minioFetch(mc), cfg.Bucket, cfg.PresignTTL)

	backoff := retry.WithMaxRetries(bootRetries, retry.NewExponential(bootRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingErr := client.Ping(ctx)
		var netErr net.Error
		if pingErr != nil && errors.As(pingErr, &netErr) {
			return retry.RetryableError(pingErr)
		}
		return pingErr
	})
	if err != nil {
		return nil, fmt.Errorf("s3 health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "s3 client initialized")
	}
	return client, nil
}

func newClient(api objectAPI, fetch fetchFunc, bucket string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = defaultPresign
	}
	return &Client{
		api:        api,
		fetch:      fetch,
		bucket:     bucket,
		presignTTL: ttl,
		sse:        encrypt.NewSSE(),
		now:        time.Now,
	}
}

func minioFetch(mc *minio.Client) fetchFunc {
	return func(ctx context.Context, bucket, key string) ([]byte, error) {
		obj, err := mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer func() { _ = obj.Close() }()
		return io.ReadAll(obj)
	}
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// PresignTTL returns the default lifetime of issued URLs.
func (c *Client) PresignTTL() time.Duration {
	return c.presignTTL
}

// Upload writes data under an owner-scoped random key with server-side
// encryption and returns the key together with a fresh signed URL.
func (c *Client) Upload(ctx context.Context, data []byte, contentType, ownerKey, filename string) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty object")
	}
	key := ObjectKey(ownerKey, filename, contentType)

	_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:          contentType,
		ServerSideEncryption: c.sse,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "upload object")
	}

	signed, expires, err := c.SignedURL(ctx, key, c.presignTTL)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Key:         key,
		Bucket:      c.bucket,
		Size:        int64(len(data)),
		ContentType: contentType,
		URL:         signed,
		ExpiresAt:   expires,
	}, nil
}

// SignedURL issues a presigned GET URL valid for ttl (the configured default
// when ttl is zero) and returns it with its expiry.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "object key required")
	}
	if ttl <= 0 {
		ttl = c.presignTTL
	}
	issuedAt := c.now().UTC()
	u, err := c.api.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "presign object")
	}
	return u.String(), issuedAt.Add(ttl), nil
}

// Get returns the object bytes.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.fetch(ctx, c.bucket, key)
	if err != nil {
		return nil, mapObjectError(err, "read object")
	}
	return data, nil
}

// Head returns object metadata without reading the body.
func (c *Client) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapObjectError(err, "stat object")
	}
	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Delete removes the object. Callers treat failures as best-effort.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "delete object")
	}
	return nil
}

// Ping checks that the configured bucket exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", c.bucket)
	}
	return nil
}

// ObjectKey builds {owner}/{uuid-hex}{ext}. The extension comes from the
// file name, falling back to the content type.
func ObjectKey(ownerKey, filename, contentType string) string {
	owner := strings.Trim(strings.ReplaceAll(strings.TrimSpace(ownerKey), "/", "_"), ".")
	if owner == "" {
		owner = "anonymous"
	}
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" && contentType != "" {
		if m := mimetype.Lookup(contentType); m != nil {
			ext = m.Extension()
		}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return owner + "/" + id + ext
}

func mapObjectError(err error, msg string) error {
	switch minio.ToErrorResponse(err).Code {
	case codeNoSuchKey, codeNoSuchObj:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "object not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, msg)
}
