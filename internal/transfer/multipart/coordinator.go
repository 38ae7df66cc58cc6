package multipart

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/checksum"
	"github.com/olaaustine/awsmultic/internal/chunker"
	"github.com/olaaustine/awsmultic/internal/metrics"
	"github.com/olaaustine/awsmultic/internal/s3api"
	"github.com/olaaustine/awsmultic/s3types"
)

// Config tunes a Coordinator. Zero values take the package defaults.
type Config struct {
	ChunkSize    int64
	Concurrency  int
	MaxAttempts  int
	Hasher       checksum.Hasher
	AbortTimeout time.Duration

	// SpoolFS stages chunks on a filesystem instead of in memory when set
	SpoolFS  billy.Filesystem
	SpoolDir string

	BackOff  func() backoff.BackOff
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Progress s3types.ProgressTracker
}

// Input describes the object a Coordinator writes.
type Input struct {
	Bucket      string
	Key         string
	ContentType string

	// Body is read exactly once, front to back
	Body io.Reader

	// Size is the expected number of bytes in Body. It drives progress and
	// sizes the final chunk buffer; zero means unknown.
	Size int64
}

// Result reports what a session did. It is returned even on failure.
type Result struct {
	SessionID string
	States    []s3types.SessionState
	Parts     int
	Size      int64
	ETag      string
	VersionID string
}

// Coordinator drives multipart sessions.
type Coordinator struct {
	s3Client s3api.S3API
	cfg      Config
	uploader *Uploader
}

// NewCoordinator creates a coordinator.
func NewCoordinator(s3Client s3api.S3API, cfg Config) *Coordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = s3types.DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = s3types.DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = s3types.DefaultMaxAttempts
	}
	if cfg.Hasher == nil {
		cfg.Hasher = checksum.SHA256()
	}
	if cfg.AbortTimeout <= 0 {
		cfg.AbortTimeout = s3types.DefaultAbortTimeout
	}

	return &Coordinator{
		s3Client: s3Client,
		cfg:      cfg,
		uploader: NewUploader(s3Client, cfg.Hasher,
			WithMaxAttempts(cfg.MaxAttempts),
			WithBackOff(cfg.BackOff),
			WithUploaderLogger(cfg.Logger),
			WithUploaderMetrics(cfg.Metrics),
		),
	}
}

// partTable holds one slot per part number, each written by one worker.
type partTable struct {
	mu    sync.Mutex
	parts []*PartRecord
}

func (t *partTable) reserve(n int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for int32(len(t.parts)) < n {
		t.parts = append(t.parts, nil)
	}
}

func (t *partTable) set(record *PartRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts[record.Number-1] = record
}

func (t *partTable) snapshot() []*PartRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*PartRecord(nil), t.parts...)
}

// Run writes in.Body to in.Bucket/in.Key through one multipart session.
// On any failure after the session is created, the session is aborted before
// Run returns.
func (c *Coordinator) Run(ctx context.Context, in Input) (*Result, error) {
	result := &Result{}
	log := c.cfg.Logger.With().Str("bucket", in.Bucket).Str("key", in.Key).Logger()

	session, err := c.create(ctx, in)
	if err != nil {
		return result, err
	}
	result.SessionID = session.ID
	log = log.With().Str("upload_id", session.ID).Logger()
	log.Debug().Int64("chunk_size", c.cfg.ChunkSize).Int("concurrency", c.cfg.Concurrency).Msg("session created")

	fail := func(cause error) (*Result, error) {
		c.abort(ctx, session, log)
		result.States = session.History()
		return result, cause
	}

	records, size, err := c.upload(ctx, session, in)
	result.Size = size
	if err != nil {
		return fail(err)
	}
	result.Parts = len(records)

	if err := session.transition(s3types.StateVerifying); err != nil {
		return fail(err)
	}
	registry, err := fetchRegistry(ctx, c.s3Client, session)
	if err != nil {
		return fail(err)
	}
	manifest, err := verifyRegistry(registry, records, c.cfg.Hasher.Algorithm() != "")
	if err != nil {
		log.Error().Err(err).Int("registry_parts", len(registry)).Int("sent_parts", len(records)).Msg("part registry mismatch")
		return fail(errors.Annotate("verifyParts", session.Bucket, session.Key, err))
	}

	output, err := c.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(session.Bucket),
		Key:             aws.String(session.Key),
		UploadId:        aws.String(session.ID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{Parts: manifest},
	})
	if err != nil {
		return fail(errors.NewObjectError("completeMultipartUpload", session.Bucket, session.Key, err))
	}
	if err := session.transition(s3types.StateCompleted); err != nil {
		return fail(err)
	}

	result.ETag = aws.ToString(output.ETag)
	result.VersionID = aws.ToString(output.VersionId)
	result.States = session.History()
	log.Info().Int("parts", result.Parts).Int64("size", result.Size).Msg("session completed")
	return result, nil
}

func (c *Coordinator) create(ctx context.Context, in Input) (*Session, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(in.Bucket),
		Key:    aws.String(in.Key),
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if algorithm := c.cfg.Hasher.Algorithm(); algorithm != "" {
		input.ChecksumAlgorithm = algorithm
	}

	output, err := c.s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("createMultipartUpload", in.Bucket, in.Key, err)
	}
	return newSession(aws.ToString(output.UploadId), in.Bucket, in.Key), nil
}

// upload chunks the body and uploads every chunk. It returns once no upload
// is in flight. The first terminal part failure stops dispatch of new parts.
func (c *Coordinator) upload(ctx context.Context, session *Session, in Input) ([]*PartRecord, int64, error) {
	if err := session.transition(s3types.StateChunking); err != nil {
		return nil, 0, err
	}

	opts := []chunker.Option{chunker.WithTotal(in.Size)}
	if c.cfg.SpoolFS != nil {
		opts = append(opts, chunker.WithSpool(c.cfg.SpoolFS, c.cfg.SpoolDir))
	}
	chunks, err := chunker.New(in.Body, c.cfg.ChunkSize, opts...)
	if err != nil {
		return nil, 0, errors.New("chunk", errors.KindInvalidInput, err)
	}

	var (
		g          errgroup.Group
		table      partTable
		failed     atomic.Bool
		produceErr error

		progressMu  sync.Mutex
		transferred int64
	)
	g.SetLimit(c.cfg.Concurrency)

	for !failed.Load() && ctx.Err() == nil {
		chunk, err := chunks.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			produceErr = errors.Annotate("chunk", session.Bucket, session.Key, err)
			break
		}
		if chunk.Number > s3types.MaxParts {
			_ = chunk.Release()
			produceErr = errors.New("chunk", errors.KindInvalidInput,
				fmt.Errorf("%w: source needs more than %d parts of %d bytes",
					errors.ErrInvalidInput, s3types.MaxParts, c.cfg.ChunkSize)).
				WithBucket(session.Bucket).
				WithKey(session.Key)
			break
		}
		if chunk.Number == 1 {
			if err := session.transition(s3types.StateUploading); err != nil {
				_ = chunk.Release()
				produceErr = err
				break
			}
		}

		table.reserve(chunk.Number)
		g.Go(func() error {
			defer func() {
				_ = chunk.Release()
			}()
			if failed.Load() {
				return nil
			}

			record, err := c.uploader.Upload(ctx, session, chunk)
			if err != nil {
				failed.Store(true)
				return err
			}
			table.set(record)

			progressMu.Lock()
			transferred += record.Size
			if c.cfg.Progress != nil {
				c.cfg.Progress.Update(transferred, in.Size)
			}
			progressMu.Unlock()
			return nil
		})
	}

	waitErr := g.Wait()
	size := transferred

	switch {
	case waitErr != nil:
		return nil, size, waitErr
	case produceErr != nil:
		return nil, size, produceErr
	case ctx.Err() != nil:
		return nil, size, errors.NewObjectError("upload", session.Bucket, session.Key, ctx.Err())
	case chunks.Emitted() == 0:
		return nil, 0, errors.NewObjectError("chunk", session.Bucket, session.Key, errors.ErrEmptySource)
	}

	return table.snapshot(), size, nil
}

// abort ends the session on the store. It runs on a context detached from the
// caller so a cancelled transfer still cleans up, bounded by AbortTimeout.
// A failed abort is logged; the store's lifecycle rules reclaim the parts.
func (c *Coordinator) abort(ctx context.Context, session *Session, log zerolog.Logger) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.AbortTimeout)
	defer cancel()

	_, err := c.s3Client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(session.Bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.ID),
	})
	if err != nil {
		log.Warn().Err(err).Msg("abort multipart upload failed")
	}
	c.cfg.Metrics.ObserveAbort()

	if err := session.transition(s3types.StateAborted); err != nil {
		log.Error().Err(err).Msg("session already terminal")
	}
}
