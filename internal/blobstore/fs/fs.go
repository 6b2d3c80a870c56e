package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/tendant/s3post/internal/blobstore"
)

// Backend is a filesystem implementation of the blobstore.BlobStore interface.
// Content lives under <base>/objects and metadata under <base>/meta.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	for _, dir := range []string{"objects", "meta"} {
		if err := os.MkdirAll(filepath.Join(config.BaseDir, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

func (b *Backend) paths(key string) (string, string, error) {
	local := filepath.FromSlash(key)
	if key == "" || path.Clean(key) != key || !filepath.IsLocal(local) {
		return "", "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, "objects", local),
		filepath.Join(b.baseDir, "meta", local+".json"), nil
}

// Put writes content to the filesystem
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, params blobstore.PutParams) error {
	dataPath, metaPath, err := b.paths(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range []string{dataPath, metaPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(file, hash), r)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}

	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	meta := blobstore.ObjectMeta{
		Key:         key,
		Size:        size,
		ContentType: contentType,
		ETag:        hex.EncodeToString(hash.Sum(nil)),
		UpdatedAt:   info.ModTime().UTC(),
		Metadata:    params.Metadata,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Get opens content from the filesystem
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	dataPath, _, err := b.paths(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(dataPath)
	if os.IsNotExist(err) {
		return nil, blobstore.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Stat reads the metadata written by Put
func (b *Backend) Stat(ctx context.Context, key string) (*blobstore.ObjectMeta, error) {
	_, metaPath, err := b.paths(key)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, blobstore.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta blobstore.ObjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}

// Delete removes content and metadata from the filesystem
func (b *Backend) Delete(ctx context.Context, key string) error {
	dataPath, metaPath, err := b.paths(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(dataPath); os.IsNotExist(err) {
		return blobstore.ErrNotFound
	}

	if err := os.Remove(dataPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(dataPath), filepath.Join(b.baseDir, "objects"))
	b.cleanupEmptyDirectories(filepath.Dir(metaPath), filepath.Join(b.baseDir, "meta"))

	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to root
func (b *Backend) cleanupEmptyDirectories(dir, root string) {
	if dir == root || len(dir) < len(root) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir), root)
		}
	}
}
