package aws

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/callrunner/callrunner/internal/storage"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store implements storage.ObjectStore on Amazon S3.
type S3Store struct {
	api S3API
}

// NewS3Store wraps an S3 client.
func NewS3Store(api S3API) *S3Store {
	return &S3Store{api: api}
}

// NewS3StoreFromConfig builds the S3 client from cfg. Path-style addressing
// is used when a custom endpoint is configured.
func NewS3StoreFromConfig(cfg aws.Config) *S3Store {
	return NewS3Store(s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.BaseEndpoint != nil
	}))
}

func (s *S3Store) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
		page, err := s.api.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("listing objects under s3://%s/%s: %w", bucket, prefix, err)
		}
		return objectInfos(page.Contents), nil
	}

	var objects []storage.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under s3://%s/%s: %w", bucket, prefix, err)
		}
		objects = append(objects, objectInfos(page.Contents)...)
	}
	return objects, nil
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, storage.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func objectInfos(contents []s3types.Object) []storage.ObjectInfo {
	objects := make([]storage.ObjectInfo, 0, len(contents))
	for _, obj := range contents {
		objects = append(objects, storage.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects
}
