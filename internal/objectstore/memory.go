package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kalambet/mdnotes/internal/apperr"
)

// Memory keeps objects in process. It is used for local development and
// in tests.
type Memory struct {
	bucket  string
	maxSize int64

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory store. maxSize <= 0 selects
// DefaultMaxSize.
func NewMemory(bucket string, maxSize int64) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Memory{
		bucket:  bucket,
		maxSize: maxSize,
		objects: make(map[string][]byte),
	}
}

func (m *Memory) Upload(ctx context.Context, r io.Reader, size int64, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if err := checkSize(size, m.maxSize); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", apperr.E(apperr.UploadFailed, "upload cancelled", err)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, size))
	if err != nil {
		return "", apperr.E(apperr.UploadFailed, "failed to upload file", err)
	}
	if n != size {
		return "", apperr.E(apperr.UploadFailed, "failed to upload file", fmt.Errorf("short read: got %d of %d bytes", n, size))
	}

	m.mu.Lock()
	m.objects[key] = buf.Bytes()
	m.mu.Unlock()
	return fmt.Sprintf("memory://%s/%s", m.bucket, key), nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.E(apperr.FetchFailed, "fetch cancelled", err)
	}
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.E(apperr.NotFound, fmt.Sprintf("object %q not found", key), nil)
	}
	return bytes.Clone(data), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return apperr.E(apperr.DeleteFailed, "delete cancelled", err)
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
