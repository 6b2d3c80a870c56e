package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3post/internal/blobstore"
	"github.com/tendant/s3post/internal/blobstore/fs"
)

func TestNew(t *testing.T) {
	_, err := fs.New(fs.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base directory is required")

	dir := t.TempDir()
	_, err = fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "objects"))
	assert.DirExists(t, filepath.Join(dir, "meta"))
}

func TestFSBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	testKey := "user/eric/uploads/report.pdf"
	testData := "%PDF-1.4 test content"

	t.Run("Put", func(t *testing.T) {
		err := backend.Put(ctx, testKey, strings.NewReader(testData), blobstore.PutParams{
			ContentType: "application/pdf",
			Metadata:    map[string]string{"uuid": "abc"},
		})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, "objects", "user", "eric", "uploads", "report.pdf"))
	})

	t.Run("Stat", func(t *testing.T) {
		meta, err := backend.Stat(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "application/pdf", meta.ContentType)
		assert.Equal(t, "abc", meta.Metadata["uuid"])
		assert.Len(t, meta.ETag, 32)
	})

	t.Run("Get", func(t *testing.T) {
		reader, err := backend.Get(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		for _, key := range []string{"", "../escape", "/etc/passwd", "a/../../b", "a/./b", "a//b", "dir/"} {
			err := backend.Put(ctx, key, strings.NewReader("x"), blobstore.PutParams{})
			assert.Error(t, err, key)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))

		_, err := backend.Get(ctx, testKey)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		_, err = backend.Stat(ctx, testKey)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, testKey), blobstore.ErrNotFound)

		_, err = os.Stat(filepath.Join(dir, "objects", "user"))
		assert.True(t, os.IsNotExist(err), "empty directories are removed")
		assert.DirExists(t, filepath.Join(dir, "objects"))
	})
}
