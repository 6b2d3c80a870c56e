package postform

import (
	"errors"
	"net/http"

	"github.com/tendant/s3post/internal/blobstore"
)

// POST verification errors
var (
	// ErrMalformedPOST is returned when the form lacks a required field or cannot be parsed
	ErrMalformedPOST = errors.New("postform: malformed POST request")

	// ErrAccessDenied is returned when the access key of the credential is unknown
	ErrAccessDenied = errors.New("postform: access denied")

	// ErrSignatureMismatch is returned when the recomputed signature differs from the submitted one
	ErrSignatureMismatch = errors.New("postform: signature does not match")

	// ErrPolicyExpired is returned when the policy expiration is in the past
	ErrPolicyExpired = errors.New("postform: policy expired")

	// ErrConditionFailed is returned when a form field violates a policy condition
	ErrConditionFailed = errors.New("postform: policy condition failed")

	// ErrEntityTooLarge is returned with ErrConditionFailed when the file exceeds the length range
	ErrEntityTooLarge = errors.New("postform: entity too large")

	// ErrEntityTooSmall is returned with ErrConditionFailed when the file is below the length range
	ErrEntityTooSmall = errors.New("postform: entity too small")
)

// IsAuthError returns true if the error rejects the request's credentials or signature
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrPolicyExpired)
}

// errorCode maps an error to the storage service error code and HTTP status
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, ErrEntityTooLarge):
		return "EntityTooLarge", http.StatusBadRequest
	case errors.Is(err, ErrEntityTooSmall):
		return "EntityTooSmall", http.StatusBadRequest
	case errors.Is(err, ErrMalformedPOST):
		return "MalformedPOSTRequest", http.StatusBadRequest
	case errors.Is(err, ErrAccessDenied):
		return "InvalidAccessKeyId", http.StatusForbidden
	case errors.Is(err, ErrSignatureMismatch):
		return "SignatureDoesNotMatch", http.StatusForbidden
	case errors.Is(err, ErrPolicyExpired), errors.Is(err, ErrConditionFailed):
		return "AccessDenied", http.StatusForbidden
	case errors.Is(err, blobstore.ErrNotFound):
		return "NoSuchKey", http.StatusNotFound
	default:
		return "InternalError", http.StatusInternalServerError
	}
}
