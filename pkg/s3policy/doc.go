// Package s3policy builds and signs browser-style POST upload policies for
// S3-compatible object storage.
//
// A policy document lists the conditions the storage service checks before it
// accepts a form upload. The document is base64 encoded and signed with a key
// derived from the secret through the AWS4-HMAC-SHA256 scope chain:
//
//	kDate    = HMAC("AWS4"+secret, "20150830")
//	kRegion  = HMAC(kDate, "us-east-1")
//	kService = HMAC(kRegion, "s3")
//	kSigning = HMAC(kService, "aws4_request")
//	signature = hex(HMAC(kSigning, policyBase64))
//
// # Basic Usage
//
//	res, err := s3policy.SignPolicy(s3policy.PolicyRequest{
//	    AccessKey:         accessKey,
//	    Secret:            secret,
//	    Bucket:            "photos",
//	    ACL:               "public-read",
//	    Region:            "us-east-1",
//	    Expires:           time.Now().Add(15 * time.Minute),
//	    PathPrefix:        "uploads/",
//	    ContentTypePrefix: "image/",
//	    MaxLength:         10 << 20,
//	})
//	if err != nil {
//	    // s3policy.IsMissingField(err) or s3policy.IsMissingSecret(err)
//	}
//	fields := res.FormFields("uploads/cat.png", "image/png")
//
// The form fields are sent ahead of the file part; see package uploader.
//
// Signing is pure computation. Nothing is cached between calls and the secret
// is neither logged nor kept in the result.
package s3policy
