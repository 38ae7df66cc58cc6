package cli

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/olaaustine/awsmultic"
	"github.com/olaaustine/awsmultic/s3types"
)

// Config is the resolved command line configuration.
type Config struct {
	Bucket      string
	Source      string
	File        string
	Destination string
	KeepSource  bool

	ChunkSize     int64
	SizeThreshold int64
	Concurrency   int
	MaxAttempts   int
	Checksum      s3types.ChecksumAlgorithm
	SpoolDir      string

	Region       string
	Endpoint     string
	PathStyle    bool
	AccessKey    string
	SecretKey    string
	Timeout      time.Duration
	SkipACLCheck bool

	LogLevel        string
	LogFormat       string
	MetricsTextfile string
}

func registerFlags(f *pflag.FlagSet) {
	f.String("config", "", "Path to a YAML config file")

	f.String("bucket", "", "Bucket holding the source and destination")
	f.String("source", "", "Key of the object to relocate; with --file it only names the destination")
	f.String("file", "", "Local file to upload instead of moving the stored source; nothing is deleted")
	f.String("newf", "", "Destination folder the object moves under")
	f.Bool("keep_source", false, "Leave the source object in place")

	f.String("chunk_size", "500MiB", "Multipart part size (e.g. 5MiB, 500MiB)")
	f.String("size_threshold", "5GiB", "Objects at or above this size use a multipart session")
	f.Int("concurrency", s3types.DefaultConcurrency, "Parts uploaded at once")
	f.Int("max_attempts", s3types.DefaultMaxAttempts, "Attempts per part for transient failures")
	f.String("checksum", "sha256", "Per-part checksum: sha256 or none")
	f.String("spool_dir", "", "Stage parts as temporary files under this directory")

	f.String("region", "", "AWS region")
	f.String("endpoint", "", "Custom S3 endpoint URL")
	f.Bool("path_style", false, "Use path-style addressing")
	f.String("access_key", "", "Static access key ID")
	f.String("secret_key", "", "Static secret access key")
	f.Duration("timeout", 0, "HTTP timeout per store call (0 = none)")
	f.Bool("skip_acl_check", false, "Skip the bucket ACL probe")

	f.String("log_level", "", "Log level (trace, debug, info, warn, error); defaults to LOG_LEVEL or info")
	f.String("log_format", "console", "Log format: console or json")
	f.String("metrics_textfile", "", "Write transfer metrics to this file in the Prometheus text format")
}

func loadConfig(f *FlagLoader) (*Config, error) {
	cfg := &Config{
		Bucket:      f.String("bucket"),
		Source:      f.String("source"),
		File:        f.String("file"),
		Destination: f.String("newf"),
		KeepSource:  f.Bool("keep_source"),

		Concurrency: f.Int("concurrency"),
		MaxAttempts: f.Int("max_attempts"),
		SpoolDir:    f.String("spool_dir"),

		Region:       f.String("region"),
		Endpoint:     f.String("endpoint"),
		PathStyle:    f.Bool("path_style"),
		AccessKey:    f.String("access_key"),
		SecretKey:    f.String("secret_key"),
		Timeout:      f.Duration("timeout"),
		SkipACLCheck: f.Bool("skip_acl_check"),

		LogLevel:        f.String("log_level"),
		LogFormat:       f.String("log_format"),
		MetricsTextfile: f.String("metrics_textfile"),
	}

	var err error
	if cfg.ChunkSize, err = f.Size("chunk_size"); err != nil {
		return nil, err
	}
	if cfg.SizeThreshold, err = f.Size("size_threshold"); err != nil {
		return nil, err
	}

	switch strings.ToLower(f.String("checksum")) {
	case "", "sha256":
		cfg.Checksum = s3types.ChecksumSHA256
	case "none":
		cfg.Checksum = s3types.ChecksumNone
	default:
		return nil, fmt.Errorf("--checksum: unknown algorithm %q", f.String("checksum"))
	}

	var missing []string
	for name, val := range map[string]string{"bucket": cfg.Bucket, "source": cfg.Source, "newf": cfg.Destination} {
		if val == "" && !(name == "source" && cfg.File != "") {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("required: %s", strings.Join(missing, ", "))
	}

	if cfg.File != "" {
		abs, err := filepath.Abs(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("--file: %w", err)
		}
		cfg.File = abs
	}
	return cfg, nil
}

// Options maps the configuration onto client options.
func (c *Config) Options(log zerolog.Logger) []s3types.Option {
	opts := []s3types.Option{
		awsmultic.WithLogger(log),
		awsmultic.WithConcurrency(c.Concurrency),
		awsmultic.WithMaxAttempts(c.MaxAttempts),
		awsmultic.WithChecksum(c.Checksum),
		awsmultic.WithSkipPermissionCheck(c.SkipACLCheck),
	}
	if c.ChunkSize > 0 {
		opts = append(opts, awsmultic.WithChunkSize(c.ChunkSize))
	}
	if c.SizeThreshold > 0 {
		opts = append(opts, awsmultic.WithSizeThreshold(c.SizeThreshold))
	}
	if c.SpoolDir != "" {
		opts = append(opts, awsmultic.WithSpoolDir(c.SpoolDir))
	}
	if c.Region != "" {
		opts = append(opts, awsmultic.WithRegion(c.Region))
	}
	if c.Endpoint != "" {
		opts = append(opts, awsmultic.WithEndpoint(c.Endpoint))
	}
	if c.PathStyle {
		opts = append(opts, awsmultic.WithForcePathStyle(true))
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsmultic.WithCredentials(c.AccessKey, c.SecretKey))
	}
	if c.Timeout > 0 {
		opts = append(opts, awsmultic.WithTimeout(c.Timeout))
	}
	return opts
}

// Request builds the transfer request.
func (c *Config) Request() s3types.TransferRequest {
	return s3types.TransferRequest{
		Bucket:            c.Bucket,
		SourceKey:         c.Source,
		LocalPath:         c.File,
		DestinationFolder: c.Destination,
		KeepSource:        c.KeepSource,
	}
}
