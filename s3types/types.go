// Package s3types provides shared type definitions for the relocation module.
package s3types

import (
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Size constants used by the defaults below.
const (
	MiB int64 = 1024 * 1024
	GiB int64 = 1024 * MiB
)

// Defaults applied by New when an option is not given.
const (
	// DefaultChunkSize is the part size used when a request does not set one.
	DefaultChunkSize = 500 * MiB

	// DefaultSizeThreshold is the single-shot/multipart cutoff. S3 refuses
	// CopyObject for sources larger than 5 GiB.
	DefaultSizeThreshold = 5 * GiB

	// DefaultConcurrency is the number of part upload workers.
	DefaultConcurrency = 4

	// DefaultMaxAttempts is the number of attempts per part for transient failures.
	DefaultMaxAttempts = 3

	// DefaultAbortTimeout bounds the abort call issued after a failure.
	DefaultAbortTimeout = 30 * time.Second

	// MaxParts is the S3 limit on parts per multipart upload.
	MaxParts = 10000
)

// ChecksumAlgorithm selects the per-part integrity digest.
type ChecksumAlgorithm string

// Supported checksum algorithms
const (
	// ChecksumSHA256 attaches a base64 SHA-256 digest to every part (default)
	ChecksumSHA256 ChecksumAlgorithm = "SHA256"

	// ChecksumNone sends parts without a digest
	ChecksumNone ChecksumAlgorithm = "NONE"
)

// Strategy is the relocation method chosen for a source object.
type Strategy string

// Relocation strategies
const (
	// StrategySingleShot copies the object with CopyObject and deletes the source
	StrategySingleShot Strategy = "single-shot"

	// StrategyMultipart streams the object through a multipart upload session
	StrategyMultipart Strategy = "multipart"
)

// SessionState is a state of the multipart session state machine.
type SessionState string

// Multipart session states, in transition order
const (
	StateCreated   SessionState = "created"
	StateChunking  SessionState = "chunking"
	StateUploading SessionState = "uploading"
	StateVerifying SessionState = "verifying"
	StateCompleted SessionState = "completed"
	StateAborted   SessionState = "aborted"
)

// Terminal reports whether no further transition is possible from s.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Outcome is the overall verdict of a transfer.
type Outcome string

// Transfer outcomes
const (
	// OutcomeSuccess means the object exists at the destination only
	OutcomeSuccess Outcome = "success"

	// OutcomePartialSuccess means the object exists at the destination but the
	// source could not be removed
	OutcomePartialSuccess Outcome = "partial-success"

	// OutcomeFailure means the destination object was not created
	OutcomeFailure Outcome = "failure"
)

// ObjectRef identifies an object in a bucket.
type ObjectRef struct {
	Bucket    string
	Key       string
	ETag      string
	VersionID string
}

// String renders the reference as an s3:// URI.
func (r ObjectRef) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// TransferRequest identifies one logical relocation.
type TransferRequest struct {
	// Bucket is the bucket holding both source and destination
	Bucket string

	// SourceKey is the object to relocate. With LocalPath it is optional and
	// only names the destination.
	SourceKey string

	// LocalPath uploads a local file instead of relocating a stored object.
	// Nothing in the bucket is read or deleted.
	LocalPath string

	// DestinationFolder is the key prefix the object moves under
	DestinationFolder string

	// ChunkSize overrides the client part size when > 0
	ChunkSize int64

	// KeepSource leaves the source object in place (copy instead of move)
	KeepSource bool

	// Strategy forces a relocation method; empty selects by size
	Strategy Strategy
}

// TransferResult is the single verdict returned for a TransferRequest.
type TransferResult struct {
	// ID correlates log lines of one transfer
	ID string

	// Outcome is Success, PartialSuccess or Failure
	Outcome Outcome

	// Strategy is the relocation method used
	Strategy Strategy

	// Object is the final destination object (Success and PartialSuccess)
	Object *ObjectRef

	// DuplicateAt is the source left behind on PartialSuccess
	DuplicateAt *ObjectRef

	// Err explains a Failure or PartialSuccess; its kind is errors.KindOf(Err)
	Err error

	// Size is the number of bytes in the source
	Size int64

	// Parts is the number of parts completed (multipart only)
	Parts int

	// SessionID is the multipart upload ID (multipart only)
	SessionID string

	// States is the sequence of session states visited (multipart only)
	States []SessionState

	// Duration is how long the transfer took
	Duration time.Duration
}

// Succeeded reports whether the object reached the destination.
func (r *TransferResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomePartialSuccess
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations must be safe for concurrent use; parts complete out of order.
type ProgressTracker interface {
	// Update is called after each part with the bytes confirmed so far
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// Configuration types for functional options

// ClientConfig holds configuration for the relocation client.
type ClientConfig struct {
	Region           string
	Endpoint         string
	AccessKeyID      string
	SecretAccessKey  string
	MaxRetries       int
	Timeout          time.Duration
	ForcePathStyle   bool
	CustomAWSConfig  *aws.Config
	CustomHTTPClient *http.Client

	ChunkSize           int64
	SizeThreshold       int64
	Concurrency         int
	MaxAttempts         int
	Checksum            ChecksumAlgorithm
	SpoolDir            string
	Filesystem          billy.Filesystem // local filesystem for LocalPath sources and spooling
	AbortTimeout        time.Duration
	RetryBaseDelay      time.Duration
	SkipPermissionCheck bool

	Logger          zerolog.Logger
	ProgressTracker ProgressTracker
	Registerer      prometheus.Registerer
}

// Option is a functional option for configuring the client.
type Option func(*ClientConfig)
