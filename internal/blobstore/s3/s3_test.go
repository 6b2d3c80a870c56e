package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3post/internal/blobstore"
)

// fakeS3 serves path-style object requests for a single bucket
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	metadata    http.Header
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		meta := http.Header{}
		for k, v := range r.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				meta[k] = v
			}
		}
		f.objects[key] = fakeObject{data: data, contentType: r.Header.Get("Content-Type"), metadata: meta}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		for k, v := range obj.metadata {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", "Mon, 31 Aug 2015 12:00:00 GMT")
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		if r.Method == http.MethodGet {
			w.Write(obj.data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	server := httptest.NewServer(&fakeS3{objects: map[string]fakeObject{}})
	t.Cleanup(server.Close)

	backend, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        server.URL,
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return backend
}

func TestNew_BucketRequired(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestS3Backend(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()
	testKey := "uploads/cat.txt"
	testData := "meow"

	t.Run("Put", func(t *testing.T) {
		err := backend.Put(ctx, testKey, strings.NewReader(testData), blobstore.PutParams{
			ContentType: "text/plain",
			Metadata:    map[string]string{"uuid": "14365123651274"},
		})
		require.NoError(t, err)
	})

	t.Run("Stat", func(t *testing.T) {
		meta, err := backend.Stat(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "text/plain", meta.ContentType)
		assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", meta.ETag)
		assert.Equal(t, "14365123651274", meta.Metadata["uuid"])
	})

	t.Run("Get", func(t *testing.T) {
		reader, err := backend.Get(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))

		_, err := backend.Stat(ctx, testKey)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		_, err = backend.Get(ctx, testKey)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, testKey), blobstore.ErrNotFound)
	})
}
