package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tendant/s3post/pkg/s3policy"
)

const (
	defaultFileField   = "file"
	defaultContentType = "application/octet-stream"
	isoTimeFormat      = "2006-01-02T15:04:05.000Z"
)

// multipartBody streams form fields, one file and the closing boundary.
// The total length is known up front so progress is always computable.
type multipartBody struct {
	io.Reader
	file        *os.File
	filename    string
	contentType string
	length      int64
}

func newMultipartBody(fields []s3policy.FormField, params map[string]any, f File) (*multipartBody, error) {
	if f.Filepath == "" {
		return nil, errors.New("uploader: file path is required")
	}

	file, err := os.Open(f.Filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%s is a directory", f.Filepath)
	}

	var head bytes.Buffer
	mw := multipart.NewWriter(&head)

	written := make(map[string]bool, len(fields))
	for _, field := range fields {
		written[field.Name] = true
		if err := mw.WriteField(field.Name, field.Value); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write field %s: %w", field.Name, err)
		}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if !written[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := mw.WriteField(name, formatParam(params[name])); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write param %s: %w", name, err)
		}
	}

	fieldName := f.Name
	if fieldName == "" {
		fieldName = defaultFileField
	}
	filename := f.Filename
	if filename == "" {
		filename = filepath.Base(f.Filepath)
	}
	fileType := f.Filetype
	if fileType == "" {
		fileType = defaultContentType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(filename)))
	h.Set("Content-Type", fileType)
	if _, err := mw.CreatePart(h); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}

	prefix := append([]byte(nil), head.Bytes()...)
	head.Reset()
	if err := mw.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	suffix := append([]byte(nil), head.Bytes()...)

	return &multipartBody{
		Reader:      io.MultiReader(bytes.NewReader(prefix), file, bytes.NewReader(suffix)),
		file:        file,
		filename:    filename,
		contentType: mw.FormDataContentType(),
		length:      int64(len(prefix)) + info.Size() + int64(len(suffix)),
	}, nil
}

// Len returns the total body size in bytes
func (b *multipartBody) Len() int64 {
	return b.length
}

// ContentType returns the multipart content type including the boundary
func (b *multipartBody) ContentType() string {
	return b.contentType
}

func (b *multipartBody) Close() error {
	return b.file.Close()
}

func formatParam(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(isoTimeFormat)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format(isoTimeFormat)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
