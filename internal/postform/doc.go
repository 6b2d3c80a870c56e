// Package postform verifies and stores browser-style POST uploads signed with
// AWS4-HMAC-SHA256 policies, for local development against a fake bucket.
package postform
