package s3policy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// HMACSHA256 returns the raw HMAC-SHA256 digest of message under key
func HMACSHA256(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// Credential composes the credential scope string:
// accessKey/date/region/service/aws4_request
func Credential(accessKey, date, region, service string) string {
	return accessKey + "/" + date + "/" + region + "/" + service + "/" + ScopeTerminator
}

// SigningKey derives the date, region and service scoped signing key.
// Each step's raw digest keys the next one:
//
//	kDate    = HMAC("AWS4"+secret, date)
//	kRegion  = HMAC(kDate, region)
//	kService = HMAC(kRegion, service)
//	kSigning = HMAC(kService, "aws4_request")
func SigningKey(secret, date, region, service string) ([]byte, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	date, service = resolveScope(date, service, time.Now)

	kDate := HMACSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := HMACSHA256(kDate, []byte(region))
	kService := HMACSHA256(kRegion, []byte(service))
	return HMACSHA256(kService, []byte(ScopeTerminator)), nil
}

// SignWithKey signs the encoded policy with a derived signing key and returns hex
func SignWithKey(policyBase64 string, signingKey []byte) string {
	return hex.EncodeToString(HMACSHA256(signingKey, []byte(policyBase64)))
}

// Sign derives the signing key for the scope and signs the encoded policy.
// An empty date means the current UTC day; an empty service means DefaultService.
func Sign(policyBase64, secret, date, region, service string) (string, error) {
	key, err := SigningKey(secret, date, region, service)
	if err != nil {
		return "", err
	}
	return SignWithKey(policyBase64, key), nil
}

func resolveScope(date, service string, now func() time.Time) (string, string) {
	if date == "" {
		date = now().UTC().Format(DateFormat)
	}
	if service == "" {
		service = DefaultService
	}
	return date, service
}
