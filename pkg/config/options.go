package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies S3POST_* environment variable overrides.
//
//	S3POST_ENDPOINT, S3POST_BUCKET, S3POST_REGION
//	S3POST_ACCESS_KEY_ID, S3POST_SECRET_ACCESS_KEY
//	S3POST_ACL, S3POST_SERVICE, S3POST_PATH_PREFIX, S3POST_CONTENT_TYPE_PREFIX
//	S3POST_MAX_LENGTH, S3POST_EXPIRY (e.g. "15m"), S3POST_META_UUID, S3POST_TIMEOUT
//
// Unset variables leave the current values untouched.
func WithEnv() Option {
	return func(c *UploadConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile loads a YAML, JSON, TOML or .env file. Environment variables
// still take precedence over the file.
func WithFile(path string) Option {
	return func(c *UploadConfig) error {
		if path == "" {
			return nil
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithBucket sets the bucket and region
func WithBucket(bucket, region string) Option {
	return func(c *UploadConfig) error {
		c.Bucket = bucket
		if region != "" {
			c.Region = region
		}
		return nil
	}
}

// WithEndpoint sets the upload endpoint
func WithEndpoint(endpoint string) Option {
	return func(c *UploadConfig) error {
		c.Endpoint = endpoint
		return nil
	}
}

// WithCredentials sets static access keys
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(c *UploadConfig) error {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithPolicy sets the policy restrictions
func WithPolicy(acl, pathPrefix, contentTypePrefix string, maxLength int64, expiry time.Duration) Option {
	return func(c *UploadConfig) error {
		if acl != "" {
			c.ACL = acl
		}
		c.PathPrefix = pathPrefix
		c.ContentTypePrefix = contentTypePrefix
		c.MaxLength = maxLength
		if expiry != 0 {
			c.Expiry = expiry
		}
		return nil
	}
}

// WithRegion sets the bucket region
func WithRegion(region string) Option {
	return func(c *UploadConfig) error {
		c.Region = region
		return nil
	}
}
