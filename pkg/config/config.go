package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/tendant/s3post/pkg/s3policy"
)

// Option applies configuration to an UploadConfig instance.
type Option func(*UploadConfig) error

// Load constructs an UploadConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*UploadConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Endpoint == "" && cfg.Bucket != "" && cfg.Region != "" {
		cfg.Endpoint = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() UploadConfig {
	return UploadConfig{
		Region:   "us-east-1",
		ACL:      "private",
		Service:  s3policy.DefaultService,
		Expiry:   time.Hour,
		MetaUUID: s3policy.DefaultMetaUUID,
		Timeout:  30 * time.Minute,
	}
}

// UploadConfig represents the settings for signing and sending POST uploads
type UploadConfig struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint" env:"S3POST_ENDPOINT" env-description:"upload endpoint, defaults to the bucket's virtual-hosted URL"`
	Bucket          string `yaml:"bucket" json:"bucket" env:"S3POST_BUCKET" env-description:"target bucket"`
	Region          string `yaml:"region" json:"region" env:"S3POST_REGION" env-description:"bucket region"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id" env:"S3POST_ACCESS_KEY_ID" env-description:"access key, falls back to the AWS credential chain"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-" env:"S3POST_SECRET_ACCESS_KEY" env-description:"secret key, falls back to the AWS credential chain"`

	// Policy options
	ACL               string        `yaml:"acl" json:"acl" env:"S3POST_ACL" env-description:"canned ACL of uploaded objects"`
	Service           string        `yaml:"service" json:"service" env:"S3POST_SERVICE" env-description:"credential scope service"`
	PathPrefix        string        `yaml:"path_prefix" json:"path_prefix" env:"S3POST_PATH_PREFIX" env-description:"required object key prefix"`
	ContentTypePrefix string        `yaml:"content_type_prefix" json:"content_type_prefix" env:"S3POST_CONTENT_TYPE_PREFIX" env-description:"required Content-Type prefix"`
	MaxLength         int64         `yaml:"max_length" json:"max_length" env:"S3POST_MAX_LENGTH" env-description:"maximum upload size in bytes, 0 for none"`
	Expiry            time.Duration `yaml:"expiry" json:"expiry" env:"S3POST_EXPIRY" env-description:"policy lifetime"`
	MetaUUID          string        `yaml:"meta_uuid" json:"meta_uuid" env:"S3POST_META_UUID" env-description:"x-amz-meta-uuid tag value"`

	// Transport options
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"S3POST_TIMEOUT" env-description:"upload timeout"`
}

// Validate validates the upload configuration
func (c *UploadConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Region == "" {
		return errors.New("region is required")
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.ACL == "" {
		return errors.New("acl is required")
	}
	if c.Expiry <= 0 {
		return fmt.Errorf("expiry must be positive, got %s", c.Expiry)
	}
	if c.MaxLength < 0 {
		return fmt.Errorf("max_length must not be negative, got %d", c.MaxLength)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// ResolveCredentials returns the configured static keys, or the AWS default
// credential chain (environment, shared files, instance roles) when either is empty.
func (c *UploadConfig) ResolveCredentials(ctx context.Context) (aws.Credentials, error) {
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")
		return provider.Retrieve(ctx)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Credentials == nil {
		return aws.Credentials{}, errors.New("no AWS credentials available")
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	return creds, nil
}

// PolicyRequest maps the configuration and credentials onto a signing request
// expiring Expiry after now. Temporary credentials add an x-amz-security-token condition.
func (c *UploadConfig) PolicyRequest(creds aws.Credentials, now time.Time) s3policy.PolicyRequest {
	req := s3policy.PolicyRequest{
		AccessKey:         creds.AccessKeyID,
		Secret:            creds.SecretAccessKey,
		Bucket:            c.Bucket,
		ACL:               c.ACL,
		Region:            c.Region,
		Expires:           now.Add(c.Expiry),
		Date:              now.UTC().Format(s3policy.DateFormat),
		Service:           c.Service,
		PathPrefix:        c.PathPrefix,
		ContentTypePrefix: c.ContentTypePrefix,
		MaxLength:         c.MaxLength,
	}
	if creds.SessionToken != "" {
		req.Conditions = append(req.Conditions, s3policy.Exact(SecurityTokenField, creds.SessionToken))
	}
	return req
}

// SecurityTokenField carries the session token of temporary credentials
const SecurityTokenField = "x-amz-security-token"
