package blobstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/sift/internal/triage"
)

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-memory blob store. Suitable for dev/testing.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]map[string]Object // bucket -> key -> object
}

var _ triage.BlobStore = (*Memory)(nil)

// NewMemory initializes an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]map[string]Object)}
}

// Get returns a copy of the object data.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	obj, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if len(obj.Data) > MaxObjectSize {
		return nil, fmt.Errorf("%w: %s/%s exceeds %d bytes", ErrTooLarge, bucket, key, MaxObjectSize)
	}
	return obj.Data, nil
}

// Put stores a copy of data, creating the bucket on first use.
func (m *Memory) Put(_ context.Context, bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket]
	if !ok {
		b = make(map[string]Object)
		m.objects[bucket] = b
	}
	b[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// Object returns a copy of the stored object, including its content type.
func (m *Memory) Object(bucket, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket][key]
	if !ok {
		return Object{}, false
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, true
}

// Len returns the number of objects in bucket.
func (m *Memory) Len(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[bucket])
}
