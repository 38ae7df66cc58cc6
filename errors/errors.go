// Package errors provides the error taxonomy for object relocation.
//
// Every failure that leaves the transfer coordinator is an *Error carrying
// the operation, the object it concerned and a Kind. The underlying cause
// stays reachable through errors.Is / errors.As.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"
)

// Error represents a failed relocation step with context about the operation.
type Error struct {
	// Op is the operation that failed (e.g., "uploadPart", "complete")
	Op string

	// Kind classifies the failure
	Kind Kind

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("awsmultic.%s [%s] %s/%s: %v", e.Op, e.Kind, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("awsmultic.%s [%s] bucket %s: %v", e.Op, e.Kind, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("awsmultic.%s [%s] object %s: %v", e.Op, e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("awsmultic.%s [%s]: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// Diagnostic returns the store's error code and message when the cause is an
// API error, or an empty string.
func (e *Error) Diagnostic() string {
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return ""
}

// New creates an Error of an explicit kind.
func New(op string, kind Kind, err error) *Error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// NewError creates an Error whose kind is derived from err.
// If err already carries a kind, that kind is kept.
func NewError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: Classify(err),
		Err:  err,
	}
}

// NewObjectError creates a classified Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return NewError(op, err).WithBucket(bucket).WithKey(key)
}

// Annotate returns err as an *Error carrying bucket and key. An existing
// *Error keeps its op and kind and only gains the fields it lacks.
func Annotate(op, bucket, key string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		annotated := *e
		if annotated.Bucket == "" {
			annotated.Bucket = bucket
		}
		if annotated.Key == "" {
			annotated.Key = key
		}
		return &annotated
	}
	return NewObjectError(op, bucket, key, err)
}

// Sentinel errors for conditions detected locally.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("awsmultic: invalid input")

	// ErrEmptySource indicates the source produced no bytes
	ErrEmptySource = errors.New("awsmultic: source is empty")

	// ErrRegistryMismatch indicates the store's part registry disagrees with the parts sent
	ErrRegistryMismatch = errors.New("awsmultic: part registry mismatch")

	// ErrChecksumMismatch indicates that checksums don't match
	ErrChecksumMismatch = errors.New("awsmultic: checksum mismatch")

	// ErrAccessDenied indicates that access to the bucket is denied
	ErrAccessDenied = errors.New("awsmultic: access denied")

	// ErrInvalidTransition indicates an illegal session state change
	ErrInvalidTransition = errors.New("awsmultic: invalid session state transition")
)

// Store error codes that map onto a specific kind.
var (
	permissionCodes = map[string]struct{}{
		"AccessDenied":          {},
		"AllAccessDisabled":     {},
		"InvalidAccessKeyId":    {},
		"SignatureDoesNotMatch": {},
		"AccountProblem":        {},
		"Forbidden":             {},
	}
	integrityCodes = map[string]struct{}{
		"BadDigest":                      {},
		"InvalidDigest":                  {},
		"XAmzContentChecksumMismatch":    {},
		"XAmzContentSHA256Mismatch":      {},
		"InvalidChecksum":                {},
		"ChecksumMismatch":               {},
		"IncompleteBody":                 {},
		"InvalidRequestChecksumMismatch": {},
	}
	sessionCodes = map[string]struct{}{
		"NoSuchUpload":     {},
		"InvalidPart":      {},
		"InvalidPartOrder": {},
	}
)

var sdkRetryables = retry.IsErrorRetryables(retry.DefaultRetryables)

// Classify maps an error onto the taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrAccessDenied):
		return KindPermission
	case errors.Is(err, ErrChecksumMismatch):
		return KindIntegrityMismatch
	case errors.Is(err, ErrRegistryMismatch), errors.Is(err, ErrEmptySource), errors.Is(err, ErrInvalidTransition):
		return KindSessionState
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if _, ok := permissionCodes[code]; ok {
			return KindPermission
		}
		if _, ok := integrityCodes[code]; ok {
			return KindIntegrityMismatch
		}
		if _, ok := sessionCodes[code]; ok {
			return KindSessionState
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch code := status.HTTPStatusCode(); {
		case code == http.StatusForbidden:
			return KindPermission
		case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return KindTransientNetwork
		}
	}

	if sdkRetryables.IsErrorRetryable(err) == aws.TrueTernary {
		return KindTransientNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientNetwork
	}

	// Some S3-compatible stores only report checksum failures in the message.
	if strings.Contains(strings.ToLower(err.Error()), "checksum") {
		return KindIntegrityMismatch
	}

	return KindStore
}

// KindOf returns the kind of err, classifying it if it is not an *Error.
func KindOf(err error) Kind {
	return Classify(err)
}

// IsKind checks if err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// IsAccessDenied checks if an error indicates access was denied.
func IsAccessDenied(err error) bool {
	return IsKind(err, KindPermission)
}

// IsTransient checks if an error is worth retrying with backoff.
func IsTransient(err error) bool {
	return IsKind(err, KindTransientNetwork)
}
