package postform

import (
	"crypto/hmac"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/s3post/pkg/s3policy"
)

// Form fields that are never matched against policy conditions
var unconditionedFields = map[string]bool{
	"policy":          true,
	"x-amz-signature": true,
	"file":            true,
}

var requiredFields = []string{
	"policy",
	"x-amz-signature",
	"x-amz-credential",
	"x-amz-algorithm",
	"x-amz-date",
	"key",
}

// SecretLookup resolves the secret of an access key. The second result is
// false when the key is unknown.
type SecretLookup func(accessKey string) (string, bool)

// StaticSecrets returns a SecretLookup over a fixed access key to secret map
func StaticSecrets(secrets map[string]string) SecretLookup {
	return func(accessKey string) (string, bool) {
		secret, ok := secrets[accessKey]
		return secret, ok
	}
}

// Verifier checks signed POST forms the way the storage service does
type Verifier struct {
	lookup SecretLookup
	now    func() time.Time
}

// VerifierOption is a functional option for configuring a Verifier
type VerifierOption func(*Verifier)

// WithClock sets the time source used for expiration checks
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier creates a new POST form verifier
func NewVerifier(lookup SecretLookup, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		lookup: lookup,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Authorization is a form whose signature, expiration and field conditions
// passed. Only the file length remains to be checked.
type Authorization struct {
	AccessKey string
	Policy    *s3policy.Document

	hasRange  bool
	minLength int64
	maxLength int64
}

// MaxLength returns the upper file size bound, or -1 when the policy sets none
func (a *Authorization) MaxLength() int64 {
	if !a.hasRange {
		return -1
	}
	return a.maxLength
}

// CheckLength validates the file size against the content-length-range condition
func (a *Authorization) CheckLength(n int64) error {
	if !a.hasRange {
		return nil
	}
	if n > a.maxLength {
		return fmt.Errorf("%w: %w: %d bytes exceeds %d", ErrConditionFailed, ErrEntityTooLarge, n, a.maxLength)
	}
	if n < a.minLength {
		return fmt.Errorf("%w: %w: %d bytes is below %d", ErrConditionFailed, ErrEntityTooSmall, n, a.minLength)
	}
	return nil
}

// Verify checks a complete form, including the uploaded file length
func (v *Verifier) Verify(fields map[string]string, bucket string, contentLength int64) error {
	auth, err := v.Authorize(fields, bucket)
	if err != nil {
		return err
	}
	return auth.CheckLength(contentLength)
}

// Authorize checks everything about a form except the file length.
// Field names are matched case-insensitively.
func (v *Verifier) Authorize(fields map[string]string, bucket string) (*Authorization, error) {
	form := make(map[string]string, len(fields))
	for name, value := range fields {
		form[strings.ToLower(name)] = value
	}

	for _, name := range requiredFields {
		if form[name] == "" {
			return nil, fmt.Errorf("%w: missing %s field", ErrMalformedPOST, name)
		}
	}

	if form["x-amz-algorithm"] != s3policy.Algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedPOST, form["x-amz-algorithm"])
	}

	accessKey, date, region, service, err := parseCredential(form["x-amz-credential"])
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(form["x-amz-date"], date) {
		return nil, fmt.Errorf("%w: x-amz-date does not match credential date", ErrMalformedPOST)
	}

	secret, ok := v.lookup(accessKey)
	if !ok {
		return nil, fmt.Errorf("%w: unknown access key %s", ErrAccessDenied, accessKey)
	}

	expected, err := s3policy.Sign(form["policy"], secret, date, region, service)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(form["x-amz-signature"]))) {
		return nil, ErrSignatureMismatch
	}

	doc, err := s3policy.ParsePolicy(form["policy"])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPOST, err)
	}

	expires, err := doc.ExpiresAt()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiration: %w", ErrMalformedPOST, err)
	}
	if !v.now().Before(expires) {
		return nil, fmt.Errorf("%w at %s", ErrPolicyExpired, doc.Expiration)
	}

	auth := &Authorization{AccessKey: accessKey, Policy: doc}
	covered := make(map[string]bool, len(doc.Conditions))
	for _, c := range doc.Conditions {
		name := strings.ToLower(c.Field())
		covered[name] = true
		if err := checkCondition(c, name, form, bucket, auth); err != nil {
			return nil, err
		}
	}

	for name := range form {
		if unconditionedFields[name] || strings.HasPrefix(name, "x-ignore-") || covered[name] {
			continue
		}
		return nil, fmt.Errorf("%w: extra input field %s", ErrConditionFailed, name)
	}

	return auth, nil
}

func checkCondition(c s3policy.Condition, name string, form map[string]string, bucket string, auth *Authorization) error {
	value, present := form[name]
	if name == "bucket" {
		value, present = bucket, true
	}

	switch c.Kind() {
	case s3policy.ConditionExact:
		if !present || value != c.Value() {
			return fmt.Errorf("%w: [\"eq\", \"$%s\", %q]", ErrConditionFailed, c.Field(), c.Value())
		}
	case s3policy.ConditionStartsWith:
		if !present || !strings.HasPrefix(value, c.Value()) {
			return fmt.Errorf("%w: [\"starts-with\", \"$%s\", %q]", ErrConditionFailed, c.Field(), c.Value())
		}
	case s3policy.ConditionContentLengthRange:
		if c.Min() < 0 || c.Max() < c.Min() {
			return fmt.Errorf("%w: invalid content-length-range [%d, %d]", ErrMalformedPOST, c.Min(), c.Max())
		}
		auth.hasRange = true
		auth.minLength = c.Min()
		auth.maxLength = c.Max()
	default:
		return fmt.Errorf("%w: unsupported condition %s", ErrConditionFailed, c.Kind())
	}
	return nil
}

// parseCredential splits <access-key>/<date>/<region>/<service>/aws4_request
func parseCredential(credential string) (accessKey, date, region, service string, err error) {
	parts := strings.Split(credential, "/")
	if len(parts) != 5 || parts[4] != s3policy.ScopeTerminator {
		return "", "", "", "", fmt.Errorf("%w: invalid credential scope", ErrMalformedPOST)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", "", fmt.Errorf("%w: invalid credential scope", ErrMalformedPOST)
		}
	}
	if _, perr := time.Parse(s3policy.DateFormat, parts[1]); perr != nil {
		return "", "", "", "", fmt.Errorf("%w: invalid credential date %q", ErrMalformedPOST, parts[1])
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}
