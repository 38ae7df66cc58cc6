// Package move relocates objects small enough for a server-side copy.
//
// A move is CopyObject followed by DeleteObject of the source. When the copy
// succeeds but the delete does not, the object exists at both keys and the
// move reports a partial cleanup instead of a failure.
package move

import (
	"context"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/s3api"
	"github.com/olaaustine/awsmultic/s3types"
)

// Result describes where the object ended up.
type Result struct {
	// Object is the destination object
	Object s3types.ObjectRef

	// DuplicateAt is set when the source could not be removed
	DuplicateAt *s3types.ObjectRef
}

// Mover handles single-shot moves within one bucket.
type Mover struct {
	s3Client s3api.S3API
	logger   zerolog.Logger
}

// NewMover creates a new move operation handler.
func NewMover(s3Client s3api.S3API, logger zerolog.Logger) *Mover {
	return &Mover{
		s3Client: s3Client,
		logger:   logger,
	}
}

// Move copies bucket/srcKey to bucket/dstKey and, unless keepSource is set,
// deletes the source. A failed delete returns both a Result and a
// PartialCleanup error.
func (m *Mover) Move(ctx context.Context, bucket, srcKey, dstKey string, keepSource bool) (*Result, error) {
	object, err := m.Copy(ctx, bucket, srcKey, dstKey)
	if err != nil {
		return nil, err
	}

	result := &Result{Object: *object}
	if keepSource {
		return result, nil
	}

	if err := DeleteSource(ctx, m.s3Client, bucket, srcKey); err != nil {
		m.logger.Warn().Err(err).Str("bucket", bucket).Str("key", srcKey).Msg("source left behind after copy")
		result.DuplicateAt = &s3types.ObjectRef{Bucket: bucket, Key: srcKey}
		return result, err
	}
	return result, nil
}

// Copy performs a server-side copy of bucket/srcKey to bucket/dstKey.
func (m *Mover) Copy(ctx context.Context, bucket, srcKey, dstKey string) (*s3types.ObjectRef, error) {
	copySource := (&url.URL{Path: bucket + "/" + srcKey}).EscapedPath()

	output, err := m.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		return nil, errors.NewObjectError("copyObject", bucket, dstKey, err).
			WithMessage("failed to copy from " + bucket + "/" + srcKey)
	}

	ref := &s3types.ObjectRef{
		Bucket:    bucket,
		Key:       dstKey,
		VersionID: aws.ToString(output.VersionId),
	}
	if output.CopyObjectResult != nil {
		ref.ETag = aws.ToString(output.CopyObjectResult.ETag)
	}
	m.logger.Debug().Str("bucket", bucket).Str("source", srcKey).Str("destination", dstKey).Msg("object copied")
	return ref, nil
}

// DeleteSource removes a relocated source object. Any failure is reported as
// PartialCleanup since the destination already exists.
func DeleteSource(ctx context.Context, s3Client s3api.S3API, bucket, key string) error {
	_, err := s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.New("deleteObject", errors.KindPartialCleanup, err).
			WithBucket(bucket).
			WithKey(key).
			WithMessage("object relocated but source remains")
	}
	return nil
}
