package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/callrunner/callrunner/internal/storage"
)

const (
	DefaultBucket = "daab-lab-jfr-datalake"
	DefaultPrefix = "Redshift/Rel"
	DefaultSuffix = ".txt"
)

// SelectionPolicy decides which candidate wins when several manifests match.
type SelectionPolicy string

const (
	// SelectFirst keeps the first match in listing order.
	SelectFirst SelectionPolicy = "first"
	// SelectLexical keeps the lexicographically smallest key.
	SelectLexical SelectionPolicy = "lexical"
	// SelectLatest keeps the most recently modified object.
	SelectLatest SelectionPolicy = "latest"
)

// ParsePolicy validates a policy name. An empty name means SelectFirst.
func ParsePolicy(name string) (SelectionPolicy, error) {
	switch SelectionPolicy(strings.ToLower(name)) {
	case "", SelectFirst:
		return SelectFirst, nil
	case SelectLexical:
		return SelectLexical, nil
	case SelectLatest:
		return SelectLatest, nil
	}
	return "", fmt.Errorf("unknown selection policy %q (must be first, lexical, or latest)", name)
}

// Locator identifies where to look for the manifest.
type Locator struct {
	Bucket string
	Prefix string
	Suffix string
	Policy SelectionPolicy
}

// Manifest is the fetched and parsed manifest object.
type Manifest struct {
	Bucket     string
	Key        string
	Content    string
	Directives []string
}

// Discover lists objects under the locator prefix and selects one manifest.
func Discover(ctx context.Context, store storage.ObjectStore, loc Locator) (storage.ObjectInfo, error) {
	objects, err := store.ListObjects(ctx, loc.Bucket, loc.Prefix, 0)
	if err != nil {
		return storage.ObjectInfo{}, &DiscoveryError{Bucket: loc.Bucket, Prefix: loc.Prefix, Suffix: loc.Suffix, Err: err}
	}
	if len(objects) == 0 {
		return storage.ObjectInfo{}, &DiscoveryError{Bucket: loc.Bucket, Prefix: loc.Prefix, Suffix: loc.Suffix, Err: ErrNoObjects}
	}

	suffix := strings.ToLower(loc.Suffix)
	var candidates []storage.ObjectInfo
	for _, obj := range objects {
		if strings.HasSuffix(strings.ToLower(obj.Key), suffix) {
			candidates = append(candidates, obj)
		}
	}
	if len(candidates) == 0 {
		return storage.ObjectInfo{}, &DiscoveryError{Bucket: loc.Bucket, Prefix: loc.Prefix, Suffix: loc.Suffix, Err: ErrNoMatchingManifest}
	}

	return selectCandidate(candidates, loc.Policy), nil
}

func selectCandidate(candidates []storage.ObjectInfo, policy SelectionPolicy) storage.ObjectInfo {
	switch policy {
	case SelectLexical:
		sorted := append([]storage.ObjectInfo(nil), candidates...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
		return sorted[0]
	case SelectLatest:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.LastModified.After(best.LastModified) ||
				(c.LastModified.Equal(best.LastModified) && c.Key < best.Key) {
				best = c
			}
		}
		return best
	default:
		return candidates[0]
	}
}

// Fetch reads the manifest object and splits it into directives.
func Fetch(ctx context.Context, store storage.ObjectStore, bucket, key string) (*Manifest, error) {
	data, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, &FetchError{Bucket: bucket, Key: key, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &FetchError{Bucket: bucket, Key: key, Err: ErrInvalidEncoding}
	}

	content := strings.TrimSpace(string(data))
	return &Manifest{
		Bucket:     bucket,
		Key:        key,
		Content:    content,
		Directives: Parse(content),
	}, nil
}

// Parse splits manifest text into trimmed, non-empty lines in order.
func Parse(content string) []string {
	var directives []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		directives = append(directives, line)
	}
	return directives
}

// UnlistedPlaceholder stands in for the listing when it cannot be produced.
const UnlistedPlaceholder = "Unable to list files"

// ListNearby returns up to maxKeys keys under prefix for diagnostics.
// Listing failures are logged and replaced by a placeholder entry.
func ListNearby(ctx context.Context, store storage.ObjectStore, bucket, prefix string, maxKeys int, logger *slog.Logger) []string {
	objects, err := store.ListObjects(ctx, bucket, prefix, maxKeys)
	if err != nil {
		logger.Warn("error listing bucket contents", "bucket", bucket, "prefix", prefix, "error", err)
		return []string{UnlistedPlaceholder}
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return keys
}
