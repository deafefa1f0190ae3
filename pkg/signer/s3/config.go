// Package s3 implements signer.UploadSigner for S3-compatible object stores.
//
// Cloudflare R2, MinIO, and Wasabi all speak the S3 presign protocol; set
// Endpoint to the store's URL and provide static credentials. For AWS S3
// proper, leave Endpoint empty and the SDK default credential chain applies.
package s3

// Config configures an S3 upload signer.
type Config struct {
	// Bucket is the target bucket name (required).
	Bucket string

	// Endpoint is the custom endpoint URL for S3-compatible stores.
	// Example (R2): https://<account-id>.r2.cloudflarestorage.com
	// Leave empty for AWS S3.
	Endpoint string

	// Region is the signing region. R2 and most compatible stores accept
	// "auto" or any placeholder; AWS S3 defaults to us-east-1 when unset.
	Region string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must
	// also be set. Takes precedence over the default credential chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID
	// is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not
	// subdomain). Required for MinIO and useful for local development.
	ForcePathStyle bool
}

// DefaultAWSRegion is the fallback region when none is resolved.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 signer config: " + e.Field + ": " + e.Message
}
