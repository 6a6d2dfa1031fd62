package storage

import (
	"context"
	"fmt"
	"strings"
)

// MockStore is a test double for the ObjectStore interface.
type MockStore struct {
	Objects []ObjectInfo      // listing order
	Data    map[string][]byte // key → content
	ListErr error
	GetErr  error

	// Track calls
	ListCalls    []string // prefixes listed
	GetCalls     []string // keys fetched
	listFailures map[string]error
}

// NewMockStore creates a MockStore with no objects.
func NewMockStore() *MockStore {
	return &MockStore{
		Data:         make(map[string][]byte),
		listFailures: make(map[string]error),
	}
}

// Put adds an object to the end of the listing.
func (m *MockStore) Put(key string, data []byte) {
	m.Objects = append(m.Objects, ObjectInfo{Key: key, Size: int64(len(data))})
	m.Data[key] = data
}

// FailListing makes listings of exactly this prefix return err.
func (m *MockStore) FailListing(prefix string, err error) {
	m.listFailures[prefix] = err
}

func (m *MockStore) ListObjects(_ context.Context, _, prefix string, maxKeys int) ([]ObjectInfo, error) {
	m.ListCalls = append(m.ListCalls, prefix)
	if err, ok := m.listFailures[prefix]; ok {
		return nil, err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []ObjectInfo
	for _, obj := range m.Objects {
		if !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		out = append(out, obj)
		if maxKeys > 0 && len(out) == maxKeys {
			break
		}
	}
	return out, nil
}

func (m *MockStore) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.GetCalls = append(m.GetCalls, key)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.Data[key]
	if !ok {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return data, nil
}
