package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/tendant/s3post/internal/blobstore"
)

type object struct {
	data []byte
	meta blobstore.ObjectMeta
}

// Backend is an in-memory implementation of the blobstore.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

// Put stores content in memory
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, params blobstore.PutParams) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	sum := md5.Sum(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = object{
		data: data,
		meta: blobstore.ObjectMeta{
			Key:         key,
			Size:        int64(len(data)),
			ContentType: contentType,
			ETag:        hex.EncodeToString(sum[:]),
			UpdatedAt:   time.Now().UTC(),
			Metadata:    maps.Clone(params.Metadata),
		},
	}
	return nil
}

// Get returns the stored content
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, blobstore.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Stat retrieves metadata for an object in memory
func (b *Backend) Stat(ctx context.Context, key string) (*blobstore.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, blobstore.ErrNotFound
	}

	meta := obj.meta
	meta.Metadata = maps.Clone(obj.meta.Metadata)
	return &meta, nil
}

// Delete removes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return blobstore.ErrNotFound
	}

	delete(b.objects, key)
	return nil
}
