// Package blobstore defines where the development POST endpoint keeps uploaded objects.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("blobstore: object not found")

// BlobStore stores uploaded objects by key
type BlobStore interface {
	// Put stores the content read from r under key
	Put(ctx context.Context, key string, r io.Reader, params PutParams) error

	// Get opens the object content
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat retrieves object metadata
	Stat(ctx context.Context, key string) (*ObjectMeta, error)

	// Delete removes the object
	Delete(ctx context.Context, key string) error
}

// PutParams contains parameters for storing an object
type PutParams struct {
	ContentType string
	ACL         string
	Metadata    map[string]string // x-amz-meta-* values, keys without the prefix
}

// ObjectMeta represents metadata about a stored object
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
	UpdatedAt   time.Time
	Metadata    map[string]string
}
