package uploader

import "errors"

var (
	// ErrMissingURL is returned when the request has no target URL
	ErrMissingURL = errors.New("uploader: missing url")

	// ErrUnsupportedMethod is returned for methods other than POST and PUT
	ErrUnsupportedMethod = errors.New("uploader: unsupported method")

	// ErrMultipleFiles is returned unless exactly one file is supplied
	ErrMultipleFiles = errors.New("uploader: exactly one file is supported")

	// ErrUploadFailed is returned when the server answers with an unexpected status
	ErrUploadFailed = errors.New("uploader: upload failed")

	// ErrUploadAborted is returned when the upload is cancelled through its context
	ErrUploadAborted = errors.New("uploader: upload aborted")
)

// IsRejected returns true if the server received the upload but refused it
func IsRejected(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}
