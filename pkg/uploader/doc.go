// Package uploader sends one local file to an HTTP endpoint as a
// multipart/form-data request and reports progress while the body is written.
//
// Form fields (for example those returned by s3policy.SigningResult.FormFields)
// are written first and the file is always the last part, as browser-style
// POST uploads to object storage require. Each Upload call owns its HTTP
// transport; cancel an upload through its context.
package uploader
