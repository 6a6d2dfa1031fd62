// Package minio implements the object store port for S3-compatible
// endpoints such as MinIO, used for on-premise manifests and local testing.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/callrunner/callrunner/internal/storage"
)

// Config holds connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Store implements storage.ObjectStore with minio-go.
type Store struct {
	client *minio.Client
}

// New creates a Store. Endpoint may be a bare host:port or a URL; an https
// scheme turns on TLS.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("minio credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	if maxKeys > 0 {
		opts.MaxKeys = maxKeys
	}

	var objects []storage.ObjectInfo
	for obj := range s.client.ListObjects(ctx, bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing objects under %s/%s: %w", bucket, prefix, classify(obj.Err))
		}
		objects = append(objects, storage.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
		if maxKeys > 0 && len(objects) == maxKeys {
			break
		}
	}
	return objects, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, classify(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, classify(err))
	}
	return data, nil
}

// classify maps a missing key onto storage.ErrObjectNotFound and keeps the
// original error text.
func classify(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
