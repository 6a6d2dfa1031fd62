// Package storage defines the object store port used to discover and read
// procedure manifests. Implementations live in internal/aws (S3) and
// internal/minio (S3-compatible endpoints).
package storage
