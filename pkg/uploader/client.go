package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tendant/s3post/pkg/s3policy"
)

const successStatusField = "success_action_status"

// Client uploads single files as multipart form requests.
// Every Upload call builds its own HTTP client and transport, so concurrent
// uploads never share connection state and cancelling one leaves the others alone.
type Client struct {
	newTransport func() http.RoundTripper
	timeout      time.Duration
	progressFunc ProgressFunc
	logger       *slog.Logger
}

// Option is a functional option for configuring a Client
type Option func(*Client)

// NewClient creates a new upload client
func NewClient(opts ...Option) *Client {
	c := &Client{
		newTransport: defaultTransport,
		timeout:      30 * time.Minute, // Long timeout for large uploads
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func defaultTransport() http.RoundTripper {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return t.Clone()
	}
	return http.DefaultTransport
}

// WithTransport sets the factory called once per upload for a fresh transport
func WithTransport(fn func() http.RoundTripper) Option {
	return func(c *Client) {
		if fn != nil {
			c.newTransport = fn
		}
	}
}

// WithTimeout sets the overall timeout of one upload. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Upload sends the request's single file with its form fields.
//
// The upload succeeds only when the server answers with the status named by
// the success_action_status field or param (200 when absent). Any other status
// returns ErrUploadFailed together with the server response. Cancelling ctx
// aborts the transfer and returns ErrUploadAborted.
//
// Example:
//
//	client := uploader.NewClient(uploader.WithProgress(func(e uploader.ProgressEvent) {
//	    fmt.Printf("%.0f%%\n", e.Progress)
//	}))
//	resp, err := client.Upload(ctx, &uploader.Request{
//	    URL:    "https://photos.s3.us-east-1.amazonaws.com/",
//	    Fields: signed.FormFields("uploads/cat.png", "image/png"),
//	    Files:  []uploader.File{{Filepath: "cat.png", Filetype: "image/png"}},
//	})
func (c *Client) Upload(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == "" {
		return nil, ErrMissingURL
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	if method != http.MethodPost && method != http.MethodPut {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	if len(req.Files) != 1 {
		return &Response{}, ErrMultipleFiles
	}

	expected, err := c.expectedStatus(req)
	if err != nil {
		return nil, err
	}

	body, err := newMultipartBody(req.Fields, req.Params, req.Files[0])
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var reader io.Reader = body
	if c.progressFunc != nil {
		reader = &progressReader{
			reader:   body,
			total:    body.Len(),
			callback: c.progressFunc,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.ContentLength = body.Len()
	httpReq.Header.Set("Content-Type", body.ContentType())
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpClient := &http.Client{
		Transport: c.newTransport(),
		Timeout:   c.timeout,
	}
	defer httpClient.CloseIdleConnections()

	c.logger.Debug("Uploading file",
		"url", req.URL,
		"method", method,
		"filename", body.filename,
		"bytes", body.Len())

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrUploadAborted, ctx.Err())
		}
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrUploadAborted, ctx.Err())
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &Response{Status: resp.StatusCode, Data: string(data)}
	if resp.StatusCode != expected {
		c.logger.Warn("Upload rejected", "url", req.URL, "status", resp.StatusCode, "expected", expected)
		return result, fmt.Errorf("%w: status %d, expected %d", ErrUploadFailed, resp.StatusCode, expected)
	}

	c.logger.Debug("Upload finished", "url", req.URL, "status", resp.StatusCode)
	return result, nil
}

// UploadSigned posts file to endpoint using the form fields of a signed policy
func (c *Client) UploadSigned(ctx context.Context, endpoint, objectKey string, signed *s3policy.SigningResult, file File) (*Response, error) {
	if signed == nil {
		return nil, errors.New("uploader: signed policy is required")
	}
	contentType := file.Filetype
	if contentType == "" {
		contentType = defaultContentType
	}
	return c.Upload(ctx, &Request{
		URL:    endpoint,
		Method: http.MethodPost,
		Fields: signed.FormFields(objectKey, contentType),
		Files:  []File{file},
	})
}

// expectedStatus resolves success_action_status, params overriding fields.
// A signed policy pins the status to 201; a caller asking for another value is
// flagged because the storage service will reject the mismatch.
func (c *Client) expectedStatus(req *Request) (int, error) {
	raw := ""
	signed := false
	for _, f := range req.Fields {
		switch f.Name {
		case successStatusField:
			raw = f.Value
		case "policy":
			signed = true
		}
	}
	if v, ok := req.Params[successStatusField]; ok {
		raw = fmt.Sprint(v)
	}

	if raw == "" {
		return http.StatusOK, nil
	}

	status, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", successStatusField, raw, err)
	}

	if signed && raw != s3policy.SuccessActionStatus {
		c.logger.Warn("success_action_status differs from the signed policy",
			"requested", raw,
			"policy", s3policy.SuccessActionStatus)
	}

	return status, nil
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	total     int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(ProgressEvent{
			TotalBytesWritten:         pr.bytesRead,
			TotalBytesExpectedToWrite: pr.total,
			Progress:                  float64(pr.bytesRead) / float64(pr.total) * 100.0,
		})
	}
	return n, err
}
