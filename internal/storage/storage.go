package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one object returned by a prefix listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the read-only view of a bucket-based object store.
type ObjectStore interface {
	// ListObjects returns objects under prefix in listing order.
	// maxKeys <= 0 lists every page; otherwise at most maxKeys objects are returned.
	ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}
