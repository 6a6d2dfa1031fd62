package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by both discovery failures.
	ErrNotFound = errors.New("manifest not found")

	// ErrNoObjects means the prefix listing returned nothing at all.
	ErrNoObjects = fmt.Errorf("%w: no objects under prefix", ErrNotFound)

	// ErrNoMatchingManifest means objects exist but none carries the manifest suffix.
	ErrNoMatchingManifest = fmt.Errorf("%w: no matching manifest files", ErrNotFound)

	// ErrInvalidEncoding means the manifest body is not valid UTF-8.
	ErrInvalidEncoding = errors.New("manifest is not valid UTF-8")
)

// DiscoveryError reports a failure to select a manifest object.
type DiscoveryError struct {
	Bucket string
	Prefix string
	Suffix string
	Err    error
}

func (e *DiscoveryError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNoObjects):
		return fmt.Sprintf("no objects under prefix %s in bucket %s", e.Prefix, e.Bucket)
	case errors.Is(e.Err, ErrNoMatchingManifest):
		return fmt.Sprintf("no matching manifest files (%s*%s) in s3://%s/", e.Prefix, e.Suffix, e.Bucket)
	default:
		return fmt.Sprintf("listing s3://%s/%s: %v", e.Bucket, e.Prefix, e.Err)
	}
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FetchError reports a failure to read or decode the selected manifest.
type FetchError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching manifest s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
