package uploader

import "github.com/tendant/s3post/pkg/s3policy"

// Request describes one single-file multipart upload
type Request struct {
	URL     string
	Method  string // POST (default) or PUT
	Headers map[string]string

	// Fields are written first, in order
	Fields []s3policy.FormField
	// Params are written after Fields, sorted by name. A param whose name is
	// already in Fields is not written; success_action_status from Params still
	// sets the expected status.
	// time.Time values are sent as ISO-8601 UTC with milliseconds.
	Params map[string]any

	Files []File
}

// File is the local file sent as the last form part
type File struct {
	Name     string // form field name, default "file"
	Filename string // default: base name of Filepath
	Filepath string
	Filetype string // default: application/octet-stream
}

// Response is the server reply
type Response struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

// ProgressEvent reports bytes written to the request body
type ProgressEvent struct {
	TotalBytesWritten         int64   `json:"totalBytesWritten"`
	TotalBytesExpectedToWrite int64   `json:"totalBytesExpectedToWrite"`
	Progress                  float64 `json:"progress"` // percent, 0-100
}

// ProgressFunc is called as the request body is sent
type ProgressFunc func(ProgressEvent)
