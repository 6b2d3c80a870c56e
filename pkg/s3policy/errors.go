package s3policy

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a mandatory policy field (expires, bucket, acl) is absent
	ErrMissingField = errors.New("s3policy: missing required field")

	// ErrMissingSecret is returned when signing is attempted without a secret key
	ErrMissingSecret = errors.New("s3policy: missing secret")

	// ErrInvalidField is returned when a request field holds an unusable value
	ErrInvalidField = errors.New("s3policy: invalid field")

	// ErrInvalidPolicy is returned when a policy document cannot be decoded
	ErrInvalidPolicy = errors.New("s3policy: invalid policy document")

	// ErrInvalidCondition is returned when a condition entry has an unknown shape
	ErrInvalidCondition = errors.New("s3policy: invalid condition")
)

// FieldError names the request field that caused ErrMissingField or ErrInvalidField.
// A nil Err means ErrMissingField.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Unwrap().Error(), e.Field)
}

func (e *FieldError) Unwrap() error {
	if e.Err == nil {
		return ErrMissingField
	}
	return e.Err
}

func missingField(name string) error {
	return &FieldError{Field: name}
}

func invalidField(name string) error {
	return &FieldError{Field: name, Err: ErrInvalidField}
}

// IsMissingField reports whether err is caused by an absent mandatory field
func IsMissingField(err error) bool {
	return errors.Is(err, ErrMissingField)
}

// IsMissingSecret reports whether err is caused by an empty secret
func IsMissingSecret(err error) bool {
	return errors.Is(err, ErrMissingSecret)
}
