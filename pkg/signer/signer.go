// Package signer defines the upload-authorization abstraction.
//
// A signer turns an object key into a time-limited URL that authorizes a
// single PUT, with the credential embedded in the query string. That lets a
// bare file-transfer command inside a sandbox push the artifact directly to
// storage without ever holding long-lived secrets.
package signer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UploadSigner produces presigned PUT URLs.
type UploadSigner interface {
	// SignPut returns a URL authorizing one HTTP PUT on key for the given
	// duration. The authorization is query-embedded; no extra headers are
	// required beyond what the uploader chooses to send.
	SignPut(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Sentinel errors for signing operations.
var (
	// ErrInvalidCredentials indicates the configured credentials were
	// rejected by the storage service.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrBucketNotFound indicates the target bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied indicates insufficient permissions on the bucket.
	ErrAccessDenied = errors.New("access denied")
)

// Error wraps signing failures with operation context.
type Error struct {
	// Op is the operation that failed (e.g. "SignPut").
	Op string

	// Bucket is the target bucket.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("signer %s: %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("signer %s: %s: %v", e.Op, e.Bucket, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}
