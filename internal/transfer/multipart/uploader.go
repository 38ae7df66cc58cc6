package multipart

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/checksum"
	"github.com/olaaustine/awsmultic/internal/chunker"
	"github.com/olaaustine/awsmultic/internal/metrics"
	"github.com/olaaustine/awsmultic/internal/s3api"
	"github.com/olaaustine/awsmultic/s3types"
)

// PartRecord describes a part the store accepted.
type PartRecord struct {
	Number   int32
	ETag     string
	Checksum string
	Size     int64
}

// DefaultBackOff is the delay policy between attempts of one part.
func DefaultBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // attempts are bounded by the uploader
	return b
}

// Uploader sends chunks as numbered parts of a session.
//
// Transient failures are retried up to maxAttempts attempts in total. A
// checksum rejection is retried once with a freshly computed digest and then
// reported. Every other failure is returned immediately.
type Uploader struct {
	s3Client    s3api.S3API
	hasher      checksum.Hasher
	maxAttempts int
	newBackOff  func() backoff.BackOff
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// WithMaxAttempts bounds the attempts per part for transient failures.
func WithMaxAttempts(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithBackOff sets the delay policy between attempts.
func WithBackOff(fn func() backoff.BackOff) UploaderOption {
	return func(u *Uploader) {
		if fn != nil {
			u.newBackOff = fn
		}
	}
}

// WithUploaderLogger sets the logger.
func WithUploaderLogger(logger zerolog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithUploaderMetrics sets the collectors retries and parts are counted in.
func WithUploaderMetrics(m *metrics.Metrics) UploaderOption {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// NewUploader creates an uploader. A nil hasher disables checksums.
func NewUploader(s3Client s3api.S3API, hasher checksum.Hasher, opts ...UploaderOption) *Uploader {
	if hasher == nil {
		hasher = checksum.None()
	}
	u := &Uploader{
		s3Client:    s3Client,
		hasher:      hasher,
		maxAttempts: s3types.DefaultMaxAttempts,
		newBackOff:  func() backoff.BackOff { return DefaultBackOff() },
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends chunk as part chunk.Number of session and returns the record
// of the accepted part. The chunk stays owned by the caller.
func (u *Uploader) Upload(ctx context.Context, session *Session, chunk *chunker.Chunk) (*PartRecord, error) {
	digest, err := u.digest(chunk)
	if err != nil {
		return nil, errors.New("digestPart", errors.KindStorageIO, err).
			WithBucket(session.Bucket).
			WithKey(session.Key)
	}

	var (
		attempt      int
		transient    int
		integrityHit bool
	)
	log := u.logger.With().
		Str("upload_id", session.ID).
		Int32("part", chunk.Number).
		Logger()

	operation := func() (*PartRecord, error) {
		attempt++
		record, err := u.send(ctx, session, chunk, digest)
		if err == nil {
			return record, nil
		}

		kind := errors.KindOf(err)
		switch kind {
		case errors.KindTransientNetwork:
			transient++
			if transient >= u.maxAttempts {
				return nil, backoff.Permanent(err)
			}
		case errors.KindIntegrityMismatch:
			if integrityHit {
				return nil, backoff.Permanent(err)
			}
			integrityHit = true
			fresh, digestErr := u.digest(chunk)
			if digestErr != nil {
				return nil, backoff.Permanent(errors.New("digestPart", errors.KindStorageIO, digestErr).
					WithBucket(session.Bucket).
					WithKey(session.Key))
			}
			digest = fresh
		default:
			return nil, backoff.Permanent(err)
		}

		u.metrics.ObserveRetry(kind.String())
		log.Warn().Err(err).Int("attempt", attempt).Str("kind", kind.String()).Msg("retrying part")
		return nil, err
	}

	record, err := backoff.RetryWithData(operation, backoff.WithContext(u.newBackOff(), ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.KindOf(err) != errors.KindCanceled {
			err = ctxErr
		}
		return nil, errors.NewObjectError("uploadPart", session.Bucket, session.Key, err).
			WithMessage(fmt.Sprintf("part %d after %d attempt(s)", chunk.Number, attempt))
	}

	u.metrics.ObservePart(record.Size)
	log.Debug().Int("attempt", attempt).Int64("size", record.Size).Msg("part uploaded")
	return record, nil
}

func (u *Uploader) digest(chunk *chunker.Chunk) (string, error) {
	body, err := chunk.Open()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = body.Close()
	}()
	return u.hasher.Digest(body)
}

func (u *Uploader) send(ctx context.Context, session *Session, chunk *chunker.Chunk, digest string) (*PartRecord, error) {
	body, err := chunk.Open()
	if err != nil {
		return nil, errors.New("openPart", errors.KindStorageIO, err)
	}
	defer func() {
		_ = body.Close()
	}()

	input := &s3.UploadPartInput{
		Bucket:        aws.String(session.Bucket),
		Key:           aws.String(session.Key),
		UploadId:      aws.String(session.ID),
		PartNumber:    aws.Int32(chunk.Number),
		Body:          body,
		ContentLength: aws.Int64(chunk.Size),
	}
	if digest != "" {
		input.ChecksumSHA256 = aws.String(digest)
	}

	output, err := u.s3Client.UploadPart(ctx, input)
	if err != nil {
		return nil, err
	}

	// Some S3-compatible stores accept the body but echo a different digest.
	if digest != "" && output.ChecksumSHA256 != nil && aws.ToString(output.ChecksumSHA256) != digest {
		return nil, errors.New("uploadPart", errors.KindIntegrityMismatch, errors.ErrChecksumMismatch)
	}

	return &PartRecord{
		Number:   chunk.Number,
		ETag:     aws.ToString(output.ETag),
		Checksum: digest,
		Size:     chunk.Size,
	}, nil
}
