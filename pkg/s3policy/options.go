package s3policy

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithClock sets the time source used to default the credential date
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetaUUID overrides the static tag written to the x-amz-meta-uuid condition
func WithMetaUUID(tag string) Option {
	return func(s *Signer) {
		s.metaUUID = tag
	}
}

// WithLogger sets the logger used for debug output. Secrets are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		if logger != nil {
			s.logger = logger
		}
	}
}
