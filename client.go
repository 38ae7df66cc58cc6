package awsmultic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/checksum"
	"github.com/olaaustine/awsmultic/internal/metrics"
	"github.com/olaaustine/awsmultic/internal/operations/move"
	"github.com/olaaustine/awsmultic/internal/s3api"
	"github.com/olaaustine/awsmultic/internal/transfer/multipart"
	"github.com/olaaustine/awsmultic/s3types"
)

// maxPartSize is the S3 upper bound for a single part and for a single CopyObject.
const maxPartSize = 5 * s3types.GiB

// Client relocates objects within S3 buckets.
// It is safe for concurrent use; every Transfer runs its own session.
type Client struct {
	// s3Client is the store handle shared by all transfers
	s3Client s3api.S3API

	cfg     s3types.ClientConfig
	hasher  checksum.Hasher
	logger  zerolog.Logger
	metrics *metrics.Metrics
	mover   *move.Mover
}

func defaultConfig() s3types.ClientConfig {
	return s3types.ClientConfig{
		MaxRetries:    3,
		ChunkSize:     s3types.DefaultChunkSize,
		SizeThreshold: s3types.DefaultSizeThreshold,
		Concurrency:   s3types.DefaultConcurrency,
		MaxAttempts:   s3types.DefaultMaxAttempts,
		Checksum:      s3types.ChecksumSHA256,
		AbortTimeout:  s3types.DefaultAbortTimeout,
		Logger:        zerolog.Nop(),
	}
}

// New creates a Client with the provided options.
// It loads AWS credentials using the default credential chain unless
// WithCredentials or WithAWSConfig is given.
//
// Example:
//
//	client, err := awsmultic.New(
//	    awsmultic.WithRegion("eu-west-1"),
//	    awsmultic.WithChunkSize(100 * s3types.MiB),
//	)
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	clientCfg := defaultConfig()
	for _, opt := range opts {
		opt(&clientCfg)
	}

	cfg, err := loadAWSConfig(ctx, &clientCfg)
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}

	var s3Opts []func(*s3.Options)
	if clientCfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if clientCfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(clientCfg.Endpoint)
		})
	}

	return newClient(s3.NewFromConfig(cfg, s3Opts...), clientCfg)
}

func loadAWSConfig(ctx context.Context, clientCfg *s3types.ClientConfig) (aws.Config, error) {
	if clientCfg.CustomAWSConfig != nil {
		cfg := *clientCfg.CustomAWSConfig
		if clientCfg.Region != "" {
			cfg.Region = clientCfg.Region
		}
		return cfg, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if clientCfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(clientCfg.Region))
	}
	if clientCfg.AccessKeyID != "" && clientCfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(clientCfg.AccessKeyID, clientCfg.SecretAccessKey, ""),
		))
	}
	if clientCfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(clientCfg.MaxRetries))
	}

	switch {
	case clientCfg.CustomHTTPClient != nil:
		loadOpts = append(loadOpts, config.WithHTTPClient(clientCfg.CustomHTTPClient))
	case clientCfg.Timeout > 0:
		loadOpts = append(loadOpts, config.WithHTTPClient(&http.Client{Timeout: clientCfg.Timeout}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// NewWithClient creates a Client around a custom S3API implementation.
// This is primarily used for testing with fake stores.
func NewWithClient(s3Client s3api.S3API, opts ...s3types.Option) (*Client, error) {
	clientCfg := defaultConfig()
	for _, opt := range opts {
		opt(&clientCfg)
	}
	return newClient(s3Client, clientCfg)
}

func newClient(s3Client s3api.S3API, clientCfg s3types.ClientConfig) (*Client, error) {
	if clientCfg.ChunkSize > maxPartSize {
		return nil, errors.New("client initialization", errors.KindInvalidInput,
			fmt.Errorf("%w: chunk size %d exceeds the 5 GiB part limit", errors.ErrInvalidInput, clientCfg.ChunkSize))
	}
	if clientCfg.SizeThreshold > maxPartSize {
		return nil, errors.New("client initialization", errors.KindInvalidInput,
			fmt.Errorf("%w: size threshold %d exceeds the 5 GiB single copy limit", errors.ErrInvalidInput, clientCfg.SizeThreshold))
	}
	if clientCfg.Checksum == "" {
		clientCfg.Checksum = s3types.ChecksumSHA256
	}
	hasher, err := checksum.ForAlgorithm(clientCfg.Checksum)
	if err != nil {
		return nil, errors.New("client initialization", errors.KindInvalidInput,
			fmt.Errorf("%w: %w", errors.ErrInvalidInput, err))
	}
	if clientCfg.Filesystem == nil {
		clientCfg.Filesystem = osfs.New("/")
	}

	return &Client{
		s3Client: s3Client,
		cfg:      clientCfg,
		hasher:   hasher,
		logger:   clientCfg.Logger,
		metrics:  metrics.New(clientCfg.Registerer),
		mover:    move.NewMover(s3Client, clientCfg.Logger),
	}, nil
}

// coordinator builds the multipart coordinator for one transfer.
func (c *Client) coordinator(chunkSize int64, logger zerolog.Logger) *multipart.Coordinator {
	cfg := multipart.Config{
		ChunkSize:    chunkSize,
		Concurrency:  c.cfg.Concurrency,
		MaxAttempts:  c.cfg.MaxAttempts,
		Hasher:       c.hasher,
		AbortTimeout: c.cfg.AbortTimeout,
		Logger:       logger,
		Metrics:      c.metrics,
		Progress:     c.cfg.ProgressTracker,
	}
	if c.cfg.SpoolDir != "" {
		cfg.SpoolFS = c.cfg.Filesystem
		cfg.SpoolDir = c.cfg.SpoolDir
	}
	if delay := c.cfg.RetryBaseDelay; delay > 0 {
		cfg.BackOff = func() backoff.BackOff {
			b := multipart.DefaultBackOff()
			b.InitialInterval = delay
			return b
		}
	}
	return multipart.NewCoordinator(c.s3Client, cfg)
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}
