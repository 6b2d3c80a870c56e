package s3policy

import "time"

const (
	// Algorithm is the signing algorithm identifier carried in the policy and form
	Algorithm = "AWS4-HMAC-SHA256"

	// DefaultService is the storage service identifier used when none is supplied
	DefaultService = "s3"

	// ScopeTerminator closes every credential scope and is the last key derivation message
	ScopeTerminator = "aws4_request"

	// SuccessActionStatus is the status code the policy pins for successful uploads
	SuccessActionStatus = "201"

	// MetaUUIDField is the metadata form field that tags objects uploaded through this package
	MetaUUIDField = "x-amz-meta-uuid"

	// DefaultMetaUUID is the static tag value written to MetaUUIDField.
	// It is not derived from the request; override it with WithMetaUUID.
	DefaultMetaUUID = "14365123651274"

	// DateFormat is the calendar day layout used in credential scopes (YYYYMMDD)
	DateFormat = "20060102"

	// ExpirationFormat is the ISO-8601 layout of the policy expiration, in UTC with milliseconds
	ExpirationFormat = "2006-01-02T15:04:05.000Z"
)

// PolicyRequest holds the inputs of one policy signing operation.
// Secret is only used to derive the signing key; it is never logged or stored.
type PolicyRequest struct {
	AccessKey string
	Secret    string
	Bucket    string
	ACL       string
	Region    string
	Expires   time.Time

	// Date is the calendar day (YYYYMMDD) of the credential scope. Defaults to the current UTC day.
	Date string
	// Service defaults to DefaultService.
	Service string

	// PathPrefix restricts the object key. Empty allows any key.
	PathPrefix string
	// ContentTypePrefix restricts the Content-Type field. Empty allows any type.
	ContentTypePrefix string
	// MaxLength is the upload size ceiling in bytes. Zero means no ceiling;
	// a negative value is rejected with ErrInvalidField.
	MaxLength int64

	// Conditions are placed ahead of the generated ones, in order.
	Conditions []Condition
}

// SigningResult is the outcome of SignPolicy. All fields are derived from the request.
type SigningResult struct {
	Date         string `json:"date"`
	Credential   string `json:"credential"`
	PolicyBase64 string `json:"policy"`
	SignatureHex string `json:"signature"`

	// Echoed from the request for building the upload form
	Bucket   string `json:"bucket"`
	ACL      string `json:"acl"`
	MetaUUID string `json:"meta_uuid"`
}

// Document is a decoded policy document
type Document struct {
	Expiration string      `json:"expiration"`
	Conditions []Condition `json:"conditions"`
}

// ExpiresAt parses the document expiration
func (d *Document) ExpiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, d.Expiration)
}

// FormField is a named multipart form value
type FormField struct {
	Name  string
	Value string
}

// AmzDate returns the x-amz-date value for a credential day: <date>T000000Z
func AmzDate(date string) string {
	return date + "T000000Z"
}

// AmzDate returns the x-amz-date form value matching the signed policy
func (r *SigningResult) AmzDate() string {
	return AmzDate(r.Date)
}

// FormFields returns the form fields a POST upload needs, in a stable order.
// The file part must follow them.
func (r *SigningResult) FormFields(objectKey, contentType string) []FormField {
	return []FormField{
		{Name: "key", Value: objectKey},
		{Name: "acl", Value: r.ACL},
		{Name: "success_action_status", Value: SuccessActionStatus},
		{Name: "Content-Type", Value: contentType},
		{Name: MetaUUIDField, Value: r.MetaUUID},
		{Name: "x-amz-credential", Value: r.Credential},
		{Name: "x-amz-algorithm", Value: Algorithm},
		{Name: "x-amz-date", Value: r.AmzDate()},
		{Name: "policy", Value: r.PolicyBase64},
		{Name: "x-amz-signature", Value: r.SignatureHex},
	}
}
