package postform

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/s3post/internal/blobstore"
)

const (
	maxFieldSize     = 1 << 20
	metaPrefix       = "x-amz-meta-"
	requestIDHeader  = "x-amz-request-id"
	filenameVariable = "${filename}"
)

// PostResponse is the XML body of a 201 upload response
type PostResponse struct {
	XMLName  xml.Name `xml:"PostResponse"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// ErrorResponse is the XML body of a failed request
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

// Handler serves browser-style POST uploads into a BlobStore.
// Objects are stored under <bucket>/<key>.
type Handler struct {
	verifier *Verifier
	store    blobstore.BlobStore
	logger   *slog.Logger
}

// HandlerOption is a functional option for configuring a Handler
type HandlerOption func(*Handler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a new POST upload handler
func NewHandler(verifier *Verifier, store blobstore.BlobStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		verifier: verifier,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount mounts the upload and inspection routes on a chi router
func (h *Handler) Mount(r chi.Router) {
	r.Post("/{bucket}", h.HandlePost)
	r.Get("/{bucket}/*", h.HandleGet)
}

// HandlePost handles multipart POST uploads.
// Form fields must precede the file part; fields after it are ignored.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)
	bucket := chi.URLParam(r, "bucket")

	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, r, requestID, "/"+bucket, fmt.Errorf("%w: %w", ErrMalformedPOST, err))
		return
	}

	fields := make(map[string]string)
	var file *multipartFile
	for file == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.writeError(w, r, requestID, "/"+bucket, fmt.Errorf("%w: %w", ErrMalformedPOST, err))
			return
		}

		if part.FormName() == "file" || part.FileName() != "" {
			file = &multipartFile{Reader: part, filename: part.FileName(), contentType: part.Header.Get("Content-Type")}
			break
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
		part.Close()
		if err != nil {
			h.writeError(w, r, requestID, "/"+bucket, fmt.Errorf("%w: %w", ErrMalformedPOST, err))
			return
		}
		if len(value) > maxFieldSize {
			h.writeError(w, r, requestID, "/"+bucket, fmt.Errorf("%w: field %s too large", ErrMalformedPOST, part.FormName()))
			return
		}
		fields[part.FormName()] = string(value)
	}
	if file == nil {
		h.writeError(w, r, requestID, "/"+bucket, fmt.Errorf("%w: missing file field", ErrMalformedPOST))
		return
	}

	auth, err := h.verifier.Authorize(fields, bucket)
	if err != nil {
		h.logger.Warn("Rejected POST upload", "request_id", requestID, "bucket", bucket, "err", err)
		h.writeError(w, r, requestID, "/"+bucket, err)
		return
	}

	form := lowerKeys(fields)
	key := strings.ReplaceAll(form["key"], filenameVariable, file.filename)
	if err := checkObjectKey(key); err != nil {
		h.logger.Warn("Rejected POST upload", "request_id", requestID, "bucket", bucket, "err", err)
		h.writeError(w, r, requestID, "/"+bucket, err)
		return
	}
	params := blobstore.PutParams{
		ContentType: form["content-type"],
		ACL:         form["acl"],
		Metadata:    make(map[string]string),
	}
	if params.ContentType == "" {
		params.ContentType = file.contentType
	}
	for name, value := range form {
		if meta, ok := strings.CutPrefix(name, metaPrefix); ok {
			params.Metadata[meta] = value
		}
	}

	storeKey := bucket + "/" + key
	body := &countingReader{reader: file, limit: auth.MaxLength()}
	if err := h.store.Put(r.Context(), storeKey, body, params); err != nil {
		h.discard(r, storeKey)
		if errors.Is(err, ErrEntityTooLarge) {
			err = auth.CheckLength(body.n)
		}
		h.logger.Error("Failed to store upload", "request_id", requestID, "key", storeKey, "err", err)
		h.writeError(w, r, requestID, "/"+storeKey, err)
		return
	}
	if err := auth.CheckLength(body.n); err != nil {
		h.discard(r, storeKey)
		h.writeError(w, r, requestID, "/"+storeKey, err)
		return
	}

	etag := ""
	if meta, err := h.store.Stat(r.Context(), storeKey); err == nil {
		etag = `"` + meta.ETag + `"`
		w.Header().Set("ETag", etag)
	}
	location := fmt.Sprintf("%s://%s/%s", scheme(r), r.Host, storeKey)
	w.Header().Set("Location", location)

	h.logger.Info("Stored POST upload",
		"request_id", requestID,
		"bucket", bucket,
		"key", key,
		"bytes", body.n,
		"access_key", auth.AccessKey)

	switch form["success_action_status"] {
	case "201":
		render.Status(r, http.StatusCreated)
		render.XML(w, r, PostResponse{Location: location, Bucket: bucket, Key: key, ETag: etag})
	case "200":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGet serves a stored object back with its metadata headers
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)
	storeKey := chi.URLParam(r, "bucket") + "/" + chi.URLParam(r, "*")

	meta, err := h.store.Stat(r.Context(), storeKey)
	if err != nil {
		h.writeError(w, r, requestID, "/"+storeKey, err)
		return
	}
	rc, err := h.store.Get(r.Context(), storeKey)
	if err != nil {
		h.writeError(w, r, requestID, "/"+storeKey, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("ETag", `"`+meta.ETag+`"`)
	w.Header().Set("Last-Modified", meta.UpdatedAt.UTC().Format(http.TimeFormat))
	for k, v := range meta.Metadata {
		w.Header().Set(metaPrefix+k, v)
	}

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("Failed to stream object", "request_id", requestID, "key", storeKey, "err", err)
	}
}

func (h *Handler) discard(r *http.Request, storeKey string) {
	if err := h.store.Delete(r.Context(), storeKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		h.logger.Error("Failed to discard rejected upload", "key", storeKey, "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, requestID, resource string, err error) {
	code, status := errorCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "request_id", requestID, "err", err)
		message = "We encountered an internal error. Please try again."
	}
	render.Status(r, status)
	render.XML(w, r, ErrorResponse{
		Code:      code,
		Message:   message,
		Resource:  resource,
		RequestID: requestID,
	})
}

type multipartFile struct {
	io.Reader
	filename    string
	contentType string
}

// countingReader counts bytes and fails once more than limit bytes were read.
// A negative limit disables the check.
type countingReader struct {
	reader io.Reader
	limit  int64
	n      int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n += int64(n)
	if c.limit >= 0 && c.n > c.limit {
		return n, ErrEntityTooLarge
	}
	return n, err
}

// checkObjectKey rejects keys the store would resolve to another path:
// a leading slash or any "." or ".." segment.
func checkObjectKey(key string) error {
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: object key %q must not start with /", ErrMalformedPOST, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("%w: object key %q contains a %q segment", ErrMalformedPOST, key, segment)
		}
	}
	return nil
}

func lowerKeys(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[strings.ToLower(k)] = v
	}
	return out
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
