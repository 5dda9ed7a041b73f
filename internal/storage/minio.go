package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioOptions configures the S3-compatible object store.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the URL prefix handed to clients. Defaults to
	// scheme://endpoint/bucket.
	PublicURL string
}

// objectPutter is the subset of *minio.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type MinioStore struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// NewMinioStore connects to MinIO and creates the bucket when it is missing.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger zerolog.Logger) (*MinioStore, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: minio endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: make bucket: %w", err)
		}
		logger.Info().Str("bucket", opts.Bucket).Msg("created bucket")
	}
	return newMinioStore(client, opts), nil
}

func newMinioStore(client objectPutter, opts MinioOptions) *MinioStore {
	public := strings.TrimSpace(opts.PublicURL)
	if public == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		public = scheme + "://" + opts.Endpoint + "/" + opts.Bucket
	}
	return &MinioStore{client: client, bucket: opts.Bucket, publicURL: public}
}

func (s *MinioStore) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, cleanKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: put object: %w", err)
	}
	return &Object{
		Key:         cleanKey,
		URL:         joinURL(s.publicURL, cleanKey),
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}
