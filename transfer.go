package awsmultic

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/chunker"
	"github.com/olaaustine/awsmultic/internal/operations/move"
	"github.com/olaaustine/awsmultic/internal/source"
	"github.com/olaaustine/awsmultic/internal/strategy"
	"github.com/olaaustine/awsmultic/internal/transfer/multipart"
	"github.com/olaaustine/awsmultic/internal/validation"
	"github.com/olaaustine/awsmultic/s3types"
)

// CheckBucketAccess probes that the caller may use bucket by reading its ACL.
func (c *Client) CheckBucketAccess(ctx context.Context, bucket string) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	_, err := c.s3Client.GetBucketAcl(ctx, &s3.GetBucketAclInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		e := errors.NewError("checkBucketAccess", err).WithBucket(bucket)
		// A missing bucket or an unreadable ACL both mean the transfer cannot run.
		if e.Kind == errors.KindStore {
			e.Kind = errors.KindPermission
		}
		return e
	}
	return nil
}

// Transfer relocates req.SourceKey under req.DestinationFolder and returns
// exactly one verdict. It never returns nil and never panics.
func (c *Client) Transfer(ctx context.Context, req s3types.TransferRequest) (result *s3types.TransferResult) {
	start := time.Now()
	result = &s3types.TransferResult{ID: uuid.NewString()}
	log := c.logger.With().
		Str("transfer_id", result.ID).
		Str("bucket", req.Bucket).
		Str("key", req.SourceKey).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("transfer panicked")
			result.Outcome = s3types.OutcomeFailure
			result.Object = nil
			result.Err = errors.New("transfer", errors.KindInternal, fmt.Errorf("panic: %v", r)).
				WithBucket(req.Bucket).
				WithKey(req.SourceKey)
		}
		result.Duration = time.Since(start)
		c.finish(result, log)
	}()

	c.run(ctx, req, result, log)
	return result
}

func (c *Client) run(ctx context.Context, req s3types.TransferRequest, result *s3types.TransferResult, log zerolog.Logger) {
	fail := func(err error) {
		result.Outcome = s3types.OutcomeFailure
		result.Err = err
	}

	dstKey, err := validation.ValidateRequest(req)
	if err != nil {
		fail(err)
		return
	}

	if !c.cfg.SkipPermissionCheck {
		if err := c.CheckBucketAccess(ctx, req.Bucket); err != nil {
			fail(err)
			return
		}
	}

	src := c.source(req)
	info, err := src.Stat(ctx)
	if err != nil {
		fail(err)
		return
	}
	result.Size = info.Size

	chunkSize := c.cfg.ChunkSize
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}

	result.Strategy = req.Strategy
	if result.Strategy == "" {
		result.Strategy = strategy.Select(info.Size, c.cfg.SizeThreshold)
		if req.LocalPath != "" {
			result.Strategy = s3types.StrategyMultipart
		}
	}

	log.Info().
		Str("destination", dstKey).
		Str("source", src.String()).
		Str("strategy", string(result.Strategy)).
		Str("size", humanize.IBytes(uint64(info.Size))).
		Msg("starting transfer")

	switch result.Strategy {
	case s3types.StrategySingleShot:
		c.singleShot(ctx, req, dstKey, result)
	default:
		if parts := chunker.Count(info.Size, chunkSize); parts > s3types.MaxParts {
			fail(errors.New("transfer", errors.KindInvalidInput,
				fmt.Errorf("%w: %d parts of %s exceed the %d part limit",
					errors.ErrInvalidInput, parts, humanize.IBytes(uint64(chunkSize)), s3types.MaxParts)).
				WithBucket(req.Bucket).
				WithKey(req.SourceKey))
			return
		}
		c.multipart(ctx, req, src, info, dstKey, chunkSize, result, log)
	}
}

func (c *Client) source(req s3types.TransferRequest) source.Source {
	if req.LocalPath != "" {
		return source.NewFile(c.cfg.Filesystem, req.LocalPath)
	}
	return source.NewObject(c.s3Client, req.Bucket, req.SourceKey)
}

func (c *Client) singleShot(ctx context.Context, req s3types.TransferRequest, dstKey string, result *s3types.TransferResult) {
	moved, err := c.mover.Move(ctx, req.Bucket, req.SourceKey, dstKey, req.KeepSource)
	if moved == nil {
		result.Outcome = s3types.OutcomeFailure
		result.Err = err
		return
	}

	result.Object = &moved.Object
	result.Outcome = s3types.OutcomeSuccess
	if err != nil {
		c.partial(result, moved.DuplicateAt, err)
	}
}

func (c *Client) multipart(
	ctx context.Context,
	req s3types.TransferRequest,
	src source.Source,
	info source.Info,
	dstKey string,
	chunkSize int64,
	result *s3types.TransferResult,
	log zerolog.Logger,
) {
	body, err := src.Open(ctx)
	if err != nil {
		result.Outcome = s3types.OutcomeFailure
		result.Err = err
		return
	}
	defer func() {
		_ = body.Close()
	}()

	session, err := c.coordinator(chunkSize, log).Run(ctx, multipart.Input{
		Bucket:      req.Bucket,
		Key:         dstKey,
		ContentType: info.ContentType,
		Body:        body,
		Size:        info.Size,
	})
	result.SessionID = session.SessionID
	result.States = session.States
	result.Parts = session.Parts
	if err != nil {
		result.Outcome = s3types.OutcomeFailure
		result.Err = err
		return
	}

	result.Outcome = s3types.OutcomeSuccess
	result.Object = &s3types.ObjectRef{
		Bucket:    req.Bucket,
		Key:       dstKey,
		ETag:      session.ETag,
		VersionID: session.VersionID,
	}

	// A local file upload never touches the stored object named by SourceKey.
	if req.KeepSource || req.LocalPath != "" {
		return
	}
	if err := move.DeleteSource(ctx, c.s3Client, req.Bucket, req.SourceKey); err != nil {
		c.partial(result, &s3types.ObjectRef{Bucket: req.Bucket, Key: req.SourceKey}, err)
	}
}

func (c *Client) partial(result *s3types.TransferResult, duplicate *s3types.ObjectRef, err error) {
	result.Outcome = s3types.OutcomePartialSuccess
	result.DuplicateAt = duplicate
	result.Err = err
	c.metrics.ObserveCleanupFailure()
}

func (c *Client) finish(result *s3types.TransferResult, log zerolog.Logger) {
	strategyLabel := string(result.Strategy)
	if strategyLabel == "" {
		strategyLabel = "none"
	}
	c.metrics.ObserveTransfer(strategyLabel, string(result.Outcome), result.Duration)

	event := log.Info()
	switch result.Outcome {
	case s3types.OutcomeSuccess:
		if c.cfg.ProgressTracker != nil {
			c.cfg.ProgressTracker.Complete()
		}
	case s3types.OutcomePartialSuccess:
		event = log.Warn().Err(result.Err)
		if result.DuplicateAt != nil {
			event = event.Str("duplicate_at", result.DuplicateAt.String())
		}
		if c.cfg.ProgressTracker != nil {
			c.cfg.ProgressTracker.Complete()
		}
	default:
		event = log.Error().Err(result.Err).Str("kind", errors.KindOf(result.Err).String())
		if c.cfg.ProgressTracker != nil {
			c.cfg.ProgressTracker.Error(result.Err)
		}
	}

	event.
		Str("outcome", string(result.Outcome)).
		Str("strategy", string(result.Strategy)).
		Int("parts", result.Parts).
		Dur("duration", result.Duration).
		Msg("transfer finished")
}
