package s3

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/texforge/texforge/pkg/signer"
)

// Signer implements signer.UploadSigner using SigV4 query presigning.
type Signer struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

var _ signer.UploadSigner = (*Signer)(nil)

// New creates a signer with the given configuration.
func New(ctx context.Context, cfg Config) (*Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &signer.Error{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &Signer{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

// SignPut returns a presigned PUT URL for key, valid for the given duration.
// The signature lives in the query string so a plain curl PUT needs no
// additional credential handling.
func (s *Signer) SignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", s.wrapError("SignPut", key, err)
	}
	return req.URL, nil
}

// CheckHealth verifies the bucket is reachable with the configured
// credentials. Registered with the readiness endpoint and the doctor
// command.
func (s *Signer) CheckHealth(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return s.wrapError("CheckHealth", "", err)
	}
	return nil
}

// wrapError converts S3 errors to signer errors with sentinel classification.
func (s *Signer) wrapError(op, key string, err error) error {
	wrapped := &signer.Error{Op: op, Bucket: s.bucket, Key: key, Err: err}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		wrapped.Err = signer.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			wrapped.Err = signer.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = signer.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = signer.ErrInvalidCredentials
		}
	}
	return wrapped
}
