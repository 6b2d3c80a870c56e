package postform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3post/internal/blobstore"
	fsstore "github.com/tendant/s3post/internal/blobstore/fs"
	"github.com/tendant/s3post/internal/blobstore/memory"
	"github.com/tendant/s3post/pkg/s3policy"
	"github.com/tendant/s3post/pkg/uploader"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Backend) {
	t.Helper()
	store := memory.New()
	r := chi.NewRouter()
	NewHandler(testVerifier(), store).Mount(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func sign(t *testing.T, req s3policy.PolicyRequest) *s3policy.SigningResult {
	t.Helper()
	res, err := s3policy.New(s3policy.WithClock(testClock)).SignPolicy(req)
	require.NoError(t, err)
	return res
}

func TestHandlePost_Created(t *testing.T) {
	srv, store := newTestServer(t)
	data := []byte("\x89PNG fake image bytes")
	path := writeTempFile(t, "cat.png", data)

	client := uploader.NewClient()
	resp, err := client.UploadSigned(context.Background(), srv.URL+"/"+testBucket,
		"user/user1/${filename}", sign(t, signedRequest()),
		uploader.File{Filepath: path, Filetype: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	var body PostResponse
	require.NoError(t, xml.Unmarshal([]byte(resp.Data), &body))
	assert.Equal(t, testBucket, body.Bucket)
	assert.Equal(t, "user/user1/cat.png", body.Key)
	assert.Equal(t, srv.URL+"/"+testBucket+"/user/user1/cat.png", body.Location)
	assert.NotEmpty(t, body.ETag)

	meta, err := store.Stat(context.Background(), testBucket+"/user/user1/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, int64(len(data)), meta.Size)
	assert.Equal(t, s3policy.DefaultMetaUUID, meta.Metadata["uuid"])

	t.Run("GetStoredObject", func(t *testing.T) {
		getResp, err := http.Get(srv.URL + "/" + testBucket + "/user/user1/cat.png")
		require.NoError(t, err)
		defer getResp.Body.Close()

		got, err := io.ReadAll(getResp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, getResp.StatusCode)
		assert.Equal(t, data, got)
		assert.Equal(t, "image/png", getResp.Header.Get("Content-Type"))
		assert.Equal(t, s3policy.DefaultMetaUUID, getResp.Header.Get("x-amz-meta-uuid"))
		assert.NotEmpty(t, getResp.Header.Get("x-amz-request-id"))
	})

	t.Run("GetMissingObject", func(t *testing.T) {
		getResp, err := http.Get(srv.URL + "/" + testBucket + "/user/user1/dog.png")
		require.NoError(t, err)
		defer getResp.Body.Close()

		var e ErrorResponse
		require.NoError(t, xml.NewDecoder(getResp.Body).Decode(&e))
		assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
		assert.Equal(t, "NoSuchKey", e.Code)
	})
}

func TestHandlePost_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		req        func() s3policy.PolicyRequest
		key        string
		data       []byte
		wantStatus int
		wantCode   string
	}{
		{
			name: "wrong secret",
			req: func() s3policy.PolicyRequest {
				r := signedRequest()
				r.Secret = "not-the-secret"
				return r
			},
			key:        "user/user1/cat.png",
			data:       []byte("meow"),
			wantStatus: http.StatusForbidden,
			wantCode:   "SignatureDoesNotMatch",
		},
		{
			name:       "key outside prefix",
			req:        signedRequest,
			key:        "elsewhere/cat.png",
			data:       []byte("meow"),
			wantStatus: http.StatusForbidden,
			wantCode:   "AccessDenied",
		},
		{
			name:       "too large",
			req:        signedRequest,
			key:        "user/user1/big.png",
			data:       bytes.Repeat([]byte("x"), 2048),
			wantStatus: http.StatusBadRequest,
			wantCode:   "EntityTooLarge",
		},
		{
			name:       "empty file",
			req:        signedRequest,
			key:        "user/user1/empty.png",
			data:       []byte{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "EntityTooSmall",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)
			path := writeTempFile(t, "upload.png", tt.data)

			resp, err := uploader.NewClient().UploadSigned(context.Background(), srv.URL+"/"+testBucket,
				tt.key, sign(t, tt.req()), uploader.File{Filepath: path, Filetype: "image/png"})
			require.ErrorIs(t, err, uploader.ErrUploadFailed)
			assert.Equal(t, tt.wantStatus, resp.Status)

			var e ErrorResponse
			require.NoError(t, xml.Unmarshal([]byte(resp.Data), &e))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.RequestID)

			_, err = store.Stat(context.Background(), testBucket+"/"+tt.key)
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		})
	}
}

func TestHandlePost_KeyEscapingPrefix(t *testing.T) {
	store, err := fsstore.New(fsstore.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandler(testVerifier(), store).Mount(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	keys := []string{
		"user/user1/../../../otherbucket/pwned.png",
		"user/user1/./cat.png",
		"user/user1/..",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			path := writeTempFile(t, "pwned.png", []byte("meow"))
			resp, err := uploader.NewClient().UploadSigned(context.Background(), srv.URL+"/"+testBucket,
				key, sign(t, signedRequest()), uploader.File{Filepath: path, Filetype: "image/png"})
			require.ErrorIs(t, err, uploader.ErrUploadFailed)
			assert.Equal(t, http.StatusBadRequest, resp.Status)

			var e ErrorResponse
			require.NoError(t, xml.Unmarshal([]byte(resp.Data), &e))
			assert.Equal(t, "MalformedPOSTRequest", e.Code)
		})
	}

	_, err = store.Stat(context.Background(), "otherbucket/pwned.png")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCheckObjectKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"user/user1/cat.png", false},
		{"a..b/c.d", false},
		{"/abs/key", true},
		{"a/../b", true},
		{"a/./b", true},
		{"..", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := checkObjectKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedPOST)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHandlePost_StatusOK(t *testing.T) {
	srv, store := newTestServer(t)

	date := "20150830"
	credential := s3policy.Credential(testAccessKey, date, "us-east-1", "s3")
	doc := `{"expiration":"2015-08-31T12:00:00.000Z","conditions":[` +
		`{"bucket":"` + testBucket + `"},["starts-with","$key",""],{"success_action_status":"200"},` +
		`{"x-amz-credential":"` + credential + `"},{"x-amz-algorithm":"AWS4-HMAC-SHA256"},` +
		`{"x-amz-date":"20150830T000000Z"}]}`
	policy := base64.StdEncoding.EncodeToString([]byte(doc))
	signature, err := s3policy.Sign(policy, testSecret, date, "us-east-1", "s3")
	require.NoError(t, err)

	resp, err := uploader.NewClient().Upload(context.Background(), &uploader.Request{
		URL: srv.URL + "/" + testBucket,
		Fields: []s3policy.FormField{
			{Name: "key", Value: "notes.txt"},
			{Name: "success_action_status", Value: "200"},
			{Name: "x-amz-credential", Value: credential},
			{Name: "x-amz-algorithm", Value: s3policy.Algorithm},
			{Name: "x-amz-date", Value: s3policy.AmzDate(date)},
			{Name: "policy", Value: policy},
			{Name: "x-amz-signature", Value: signature},
		},
		Files: []uploader.File{{Filepath: writeTempFile(t, "notes.txt", []byte("hello")), Filetype: "text/plain"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Data)

	meta, err := store.Stat(context.Background(), testBucket+"/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)
}

func TestHandlePost_Malformed(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("NotMultipart", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/"+testBucket, "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		defer resp.Body.Close()

		var e ErrorResponse
		require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MalformedPOSTRequest", e.Code)
	})

	t.Run("MissingFile", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for name, value := range signedForm(t, signedRequest(), "user/user1/cat.png", "image/png") {
			require.NoError(t, mw.WriteField(name, value))
		}
		require.NoError(t, mw.Close())

		resp, err := http.Post(srv.URL+"/"+testBucket, mw.FormDataContentType(), &buf)
		require.NoError(t, err)
		defer resp.Body.Close()

		var e ErrorResponse
		require.NoError(t, xml.NewDecoder(resp.Body).Decode(&e))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "MalformedPOSTRequest", e.Code)
		assert.Contains(t, e.Message, "missing file field")
	})
}
