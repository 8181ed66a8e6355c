// Package objectstore persists generated images in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultBucket = "mamette-covers"

type Opts func(c *bucketConfig)

type bucketConfig struct {
	endpoint      string
	bucket        string
	region        string
	accessKey     string
	secretKey     string
	publicBaseURL string
	useSSL        bool
}

func WithEndpoint(endpoint string) Opts {
	return func(c *bucketConfig) { c.endpoint = endpoint }
}

func WithBucket(bucket string) Opts {
	return func(c *bucketConfig) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

func WithRegion(region string) Opts {
	return func(c *bucketConfig) { c.region = region }
}

func WithCredentials(accessKey, secretKey string) Opts {
	return func(c *bucketConfig) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *bucketConfig) { c.useSSL = useSSL }
}

// WithPublicBaseURL sets the origin used in returned object URLs, e.g. a CDN
// in front of the bucket. Defaults to the endpoint.
func WithPublicBaseURL(u string) Opts {
	return func(c *bucketConfig) { c.publicBaseURL = strings.TrimRight(u, "/") }
}

// Bucket uploads objects to a single public-read bucket.
type Bucket struct {
	cfg    *bucketConfig
	client *minio.Client

	mu      sync.Mutex
	ensured bool
}

// New creates a bucket client. No request is made until the first upload.
func New(opts ...Opts) (*Bucket, error) {
	cfg := &bucketConfig{bucket: defaultBucket}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("objectstore: endpoint is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: creating client: %w", err)
	}
	return &Bucket{cfg: cfg, client: client}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.cfg.bucket }

// EnsureBucket creates the bucket when it does not exist and makes its
// objects publicly readable.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.cfg.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", b.cfg.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.cfg.bucket, minio.MakeBucketOptions{Region: b.cfg.region}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", b.cfg.bucket, err)
	}
	if err := b.client.SetBucketPolicy(ctx, b.cfg.bucket, publicReadPolicy(b.cfg.bucket)); err != nil {
		return fmt.Errorf("setting policy on bucket %s: %w", b.cfg.bucket, err)
	}
	return nil
}

func (b *Bucket) ensure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ensured {
		return nil
	}
	if err := b.EnsureBucket(ctx); err != nil {
		return err
	}
	b.ensured = true
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

// Upload stores data under name, overwriting any existing object, and
// returns its public URL. The bucket is ensured on the first successful call.
func (b *Bucket) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := b.ensure(ctx); err != nil {
		return "", err
	}

	_, err := b.client.PutObject(ctx, b.cfg.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	return b.PublicURL(name), nil
}

// PublicURL is the URL an uploaded object is served from.
func (b *Bucket) PublicURL(name string) string {
	base := b.cfg.publicBaseURL
	if base == "" {
		base = strings.TrimRight(b.client.EndpointURL().String(), "/")
	}
	return base + "/" + url.PathEscape(b.cfg.bucket) + "/" + escapeKey(name)
}

func escapeKey(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
