package s3policy

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"
)

// Signer builds and signs POST upload policies.
// A Signer holds no per-request state and is safe for concurrent use.
type Signer struct {
	now      func() time.Time
	metaUUID string
	logger   *slog.Logger
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		now:      time.Now,
		metaUUID: DefaultMetaUUID,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

var defaultSigner = New()

// BuildPolicy builds the base64 policy document with a default Signer
func BuildPolicy(req PolicyRequest) (string, error) {
	return defaultSigner.BuildPolicy(req)
}

// SignPolicy builds and signs a policy with a default Signer
func SignPolicy(req PolicyRequest) (*SigningResult, error) {
	return defaultSigner.SignPolicy(req)
}

// BuildPolicy assembles the ordered conditions and returns the base64 encoded
// JSON policy document. The secret is not required here.
func (s *Signer) BuildPolicy(req PolicyRequest) (string, error) {
	return s.buildPolicy(s.resolve(req))
}

// SignPolicy resolves the credential date and service, builds the policy and
// signs it with the scoped signing key.
//
// Example:
//
//	res, err := s3policy.New().SignPolicy(s3policy.PolicyRequest{
//	    AccessKey: "AKIA...", Secret: secret,
//	    Bucket: "photos", ACL: "public-read", Region: "us-east-1",
//	    Expires: time.Now().Add(time.Hour),
//	})
func (s *Signer) SignPolicy(req PolicyRequest) (*SigningResult, error) {
	r := s.resolve(req)

	policy, err := s.buildPolicy(r)
	if err != nil {
		return nil, err
	}

	signature, err := Sign(policy, r.Secret, r.Date, r.Region, r.Service)
	if err != nil {
		return nil, err
	}

	credential := Credential(r.AccessKey, r.Date, r.Region, r.Service)
	s.logger.Debug("Signed upload policy",
		"bucket", r.Bucket,
		"credential", credential,
		"expires", r.Expires.UTC().Format(ExpirationFormat))

	return &SigningResult{
		Date:         r.Date,
		Credential:   credential,
		PolicyBase64: policy,
		SignatureHex: signature,
		Bucket:       r.Bucket,
		ACL:          r.ACL,
		MetaUUID:     s.metaUUID,
	}, nil
}

// resolve fills the date and service defaults once so the credential and the
// x-amz-date condition always agree.
func (s *Signer) resolve(req PolicyRequest) PolicyRequest {
	req.Date, req.Service = resolveScope(req.Date, req.Service, s.now)
	return req
}

func (s *Signer) buildPolicy(r PolicyRequest) (string, error) {
	if r.Expires.IsZero() {
		return "", missingField("expires")
	}
	if r.Bucket == "" {
		return "", missingField("bucket")
	}
	if r.ACL == "" {
		return "", missingField("acl")
	}
	if r.MaxLength < 0 {
		return "", invalidField("maxLength")
	}

	doc := Document{
		Expiration: r.Expires.UTC().Format(ExpirationFormat),
		Conditions: s.conditions(r),
	}

	data, err := encodeJSON(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy: %w", err)
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// conditions returns the caller's extra conditions followed by the generated ones.
// The caller's slice is copied, never appended to.
func (s *Signer) conditions(r PolicyRequest) []Condition {
	conds := make([]Condition, 0, len(r.Conditions)+10)
	conds = append(conds, r.Conditions...)

	conds = append(conds,
		StartsWith("key", r.PathPrefix),
		Exact("success_action_status", SuccessActionStatus),
		StartsWith("Content-Type", r.ContentTypePrefix),
		Exact(MetaUUIDField, s.metaUUID),
		Exact("x-amz-credential", Credential(r.AccessKey, r.Date, r.Region, r.Service)),
		Exact("x-amz-algorithm", Algorithm),
		Exact("x-amz-date", AmzDate(r.Date)),
	)

	if r.MaxLength > 0 {
		conds = append(conds, ContentLengthRange(1, r.MaxLength))
	}

	return append(conds,
		Exact("bucket", r.Bucket),
		Exact("acl", r.ACL),
	)
}
