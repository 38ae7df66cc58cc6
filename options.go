package awsmultic

import (
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/olaaustine/awsmultic/s3types"
)

// WithRegion sets the AWS region.
// If not specified, uses the region from the default credential chain.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL for S3-compatible stores.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
// Most S3-compatible stores need this together with WithEndpoint.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithCredentials uses static credentials instead of the default chain.
func WithCredentials(accessKeyID, secretAccessKey string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithMaxRetries sets the SDK retry attempts for every store call.
// Part uploads retry on top of this; see WithMaxAttempts.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithTimeout sets the HTTP timeout for individual store calls.
// Default is no timeout (0).
func WithTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithAWSConfig supplies a complete AWS configuration, skipping the default loader.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithCustomHTTPClient allows providing a custom HTTP client.
func WithCustomHTTPClient(client *http.Client) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomHTTPClient = client
	}
}

// WithChunkSize sets the multipart part size. Default is 500 MiB.
func WithChunkSize(size int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithSizeThreshold sets the size at which transfers switch from a
// single-shot copy to a multipart session. Default is 5 GiB, which is also
// the largest accepted value.
func WithSizeThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.SizeThreshold = threshold
	}
}

// WithConcurrency sets the number of parts uploaded at once. Default is 4.
func WithConcurrency(concurrency int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithMaxAttempts sets the attempts per part for transient failures. Default is 3.
func WithMaxAttempts(attempts int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay sets the first delay between part attempts.
func WithRetryBaseDelay(delay time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.RetryBaseDelay = delay
	}
}

// WithChecksum selects the per-part checksum. Default is SHA256.
func WithChecksum(algorithm s3types.ChecksumAlgorithm) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Checksum = algorithm
	}
}

// WithSpoolDir stages chunks as temporary files under dir instead of memory.
func WithSpoolDir(dir string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.SpoolDir = dir
	}
}

// WithFilesystem sets the filesystem local sources and spool files live on.
// If not specified, defaults to the OS filesystem.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithAbortTimeout bounds the abort issued after a failed multipart session.
func WithAbortTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if timeout > 0 {
			c.AbortTimeout = timeout
		}
	}
}

// WithSkipPermissionCheck disables the bucket ACL probe before each transfer.
func WithSkipPermissionCheck(skip bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.SkipPermissionCheck = skip
	}
}

// WithLogger sets the logger. Default discards everything.
func WithLogger(logger zerolog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithProgress sets a tracker notified as parts complete.
func WithProgress(tracker s3types.ProgressTracker) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ProgressTracker = tracker
	}
}

// WithRegisterer registers the transfer metrics with reg.
func WithRegisterer(reg prometheus.Registerer) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Registerer = reg
	}
}
