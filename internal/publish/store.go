// Package publish uploads a built site to S3-compatible object storage.
package publish

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"git.home.luguber.info/inful/rstsite/internal/config"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

const defaultRegion = "us-east-1"

// Object is a stored object as seen by a listing.
type Object struct {
	Key  string
	ETag string
	Size int64
}

// Store is the object storage a Deployer writes to.
type Store interface {
	EnsureBucket(ctx context.Context) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
}

// S3Store is a Store backed by minio-go.
type S3Store struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// NewS3Store connects to the endpoint in cfg. Without static keys the credentials are
// read from the AWS_* or MINIO_* environment variables.
func NewS3Store(cfg config.DeployConfig) (*S3Store, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
	})
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	client, err := minio.New(strings.TrimSpace(cfg.Endpoint), &minio.Options{
		Creds:  creds,
		Secure: !cfg.Insecure,
		Region: region,
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "init s3 client").
			WithContext("endpoint", cfg.Endpoint).Build()
	}
	return &S3Store{client: client, bucket: cfg.Bucket, region: region}, nil
}

// EnsureBucket creates the bucket on first use when it does not exist.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = networkError(err, "check bucket", s.bucket)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			s.initErr = networkError(err, "create bucket", s.bucket)
		}
	})
	return s.initErr
}

// List returns every object below prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, networkError(obj.Err, "list objects", s.bucket)
		}
		if obj.Key == "" {
			continue
		}
		out = append(out, Object{Key: obj.Key, ETag: strings.Trim(obj.ETag, `"`), Size: obj.Size})
	}
	return out, nil
}

// Put uploads one object.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return networkError(err, "put object", key)
	}
	return nil
}

// Remove deletes one object.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return networkError(err, "remove object", key)
	}
	return nil
}

func networkError(err error, op, target string) error {
	resp := minio.ToErrorResponse(err)
	b := ferrors.WrapError(err, ferrors.CategoryNetwork, op).WithContext("target", target)
	if resp.Code != "" {
		b = b.WithContext("code", resp.Code)
	}
	if transient(resp) {
		b = b.Retryable()
	}
	return b.Build()
}

// transient reports whether a failed request is worth repeating: transport errors
// without a response, throttling and server-side failures.
func transient(resp minio.ErrorResponse) bool {
	switch {
	case resp.StatusCode == 0 && resp.Code == "":
		return true
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return true
	case resp.Code == "SlowDown" || resp.Code == "RequestTimeout" || resp.Code == "InternalError":
		return true
	default:
		return false
	}
}
