package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olaaustine/awsmultic"
	"github.com/olaaustine/awsmultic/internal/testutil"
	"github.com/olaaustine/awsmultic/s3types"
)

func fakeFactory(store *testutil.FakeStore) ClientFactory {
	return func(_ context.Context, opts ...s3types.Option) (*awsmultic.Client, error) {
		return awsmultic.NewWithClient(store, opts...)
	}
}

func newLoader(t *testing.T, args ...string) *FlagLoader {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	registerFlags(cmd.Flags())
	v := newViper(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return NewFlagLoader(cmd, v)
}

func execute(t *testing.T, store *testutil.FakeStore, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(fakeFactory(store))
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	code := Execute(context.Background(), cmd)
	return code, stdout.String(), stderr.String()
}

var baseArgs = []string{
	"--bucket", "bucket",
	"--source", "incoming/data.bin",
	"--newf", "archive",
	"--log_format", "json",
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newLoader(t, baseArgs...))
	require.NoError(t, err)

	assert.Equal(t, "bucket", cfg.Bucket)
	assert.Equal(t, "incoming/data.bin", cfg.Source)
	assert.Equal(t, "archive", cfg.Destination)
	assert.Equal(t, 500*s3types.MiB, cfg.ChunkSize)
	assert.Equal(t, 5*s3types.GiB, cfg.SizeThreshold)
	assert.Equal(t, s3types.DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, s3types.ChecksumSHA256, cfg.Checksum)
	assert.False(t, cfg.KeepSource)
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Setenv("AWSMULTIC_CHUNK_SIZE", "8MiB")
	t.Setenv("AWSMULTIC_CONCURRENCY", "6")
	t.Setenv("AWSMULTIC_REGION", "eu-west-1")

	cfg, err := loadConfig(newLoader(t, append(baseArgs, "--concurrency", "2")...))
	require.NoError(t, err)

	assert.Equal(t, 8*s3types.MiB, cfg.ChunkSize, "env overrides default")
	assert.Equal(t, 2, cfg.Concurrency, "flag overrides env")
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "awsmultic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bucket: from-file
source: incoming/a.bin
newf: archive
chunk_size: 16MiB
keep_source: true
`), 0o600))

	loader := newLoader(t, "--bucket", "from-flag")
	loader.v.SetConfigFile(path)
	require.NoError(t, loader.v.ReadInConfig())

	cfg, err := loadConfig(loader)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Bucket)
	assert.Equal(t, "incoming/a.bin", cfg.Source)
	assert.Equal(t, 16*s3types.MiB, cfg.ChunkSize)
	assert.True(t, cfg.KeepSource)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing required", args: []string{"--bucket", "bucket"}, want: "--newf, --source"},
		{name: "bad size", args: append(baseArgs, "--chunk_size", "lots"), want: "--chunk_size"},
		{name: "bad checksum", args: append(baseArgs, "--checksum", "md5"), want: "md5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(newLoader(t, tt.args...))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadConfig_FileIsAbsolute(t *testing.T) {
	cfg, err := loadConfig(newLoader(t, append(baseArgs, "--file", "data.bin")...))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.File))
	assert.Equal(t, "data.bin", filepath.Base(cfg.File))
}

func TestConfig_OptionsAndRequest(t *testing.T) {
	cfg := &Config{
		Bucket:      "bucket",
		Source:      "incoming/data.bin",
		File:        "/tmp/data.bin",
		Destination: "archive",
		KeepSource:  true,
		ChunkSize:   5 * s3types.MiB,
		Checksum:    s3types.ChecksumNone,
		Region:      "us-west-2",
		Endpoint:    "http://localhost:9000",
		PathStyle:   true,
		AccessKey:   "AKID",
		SecretKey:   "SECRET",
	}

	var clientCfg s3types.ClientConfig
	for _, opt := range cfg.Options(zerolog.Nop()) {
		opt(&clientCfg)
	}
	assert.Equal(t, 5*s3types.MiB, clientCfg.ChunkSize)
	assert.Equal(t, s3types.ChecksumNone, clientCfg.Checksum)
	assert.Equal(t, "us-west-2", clientCfg.Region)
	assert.Equal(t, "http://localhost:9000", clientCfg.Endpoint)
	assert.True(t, clientCfg.ForcePathStyle)
	assert.Equal(t, "AKID", clientCfg.AccessKeyID)

	req := cfg.Request()
	assert.Equal(t, "/tmp/data.bin", req.LocalPath)
	assert.Equal(t, "archive", req.DestinationFolder)
	assert.True(t, req.KeepSource)
}

func TestCommand_Success(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "incoming/data.bin", testutil.GenerateRandomData(2048), "application/octet-stream")

	code, stdout, _ := execute(t, store, baseArgs...)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "s3://bucket/archive/data.bin")
	_, ok := store.Object("bucket", "archive/data.bin")
	assert.True(t, ok)
}

func TestCommand_Multipart(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "incoming/data.bin", testutil.GenerateRandomData(11*int(s3types.MiB)), "application/octet-stream")

	code, stdout, stderr := execute(t, store, append(baseArgs,
		"--chunk_size", "5MiB",
		"--size_threshold", "10MiB",
	)...)

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "multipart")
	assert.Contains(t, stderr, `"message":"progress"`)
	assert.Equal(t, 3, store.PartAttempts(1)+store.PartAttempts(2)+store.PartAttempts(3))
}

func TestCommand_UploadFile(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	path := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("local bytes"), 0o600))

	code, stdout, stderr := execute(t, store,
		"--bucket", "bucket",
		"--file", path,
		"--newf", "archive",
		"--log_format", "json",
	)

	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "s3://bucket/archive/upload.bin")
	got, ok := store.Object("bucket", "archive/upload.bin")
	require.True(t, ok)
	assert.Equal(t, []byte("local bytes"), got)
	assert.Zero(t, store.Calls("DeleteObject"))
}

func TestCommand_PartialSuccess(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "incoming/data.bin", testutil.GenerateRandomData(2048), "application/octet-stream")
	store.DeleteHook = func(string) error { return testutil.APIError("AccessDenied") }

	code, stdout, _ := execute(t, store, baseArgs...)

	assert.Equal(t, ExitPartialSuccess, code)
	assert.Contains(t, stdout, "could not be removed")
}

func TestCommand_Failure(t *testing.T) {
	store := testutil.NewFakeStore("bucket")

	code, stdout, _ := execute(t, store, baseArgs...)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "transfer failed [STORE]")
}

func TestCommand_SizeThresholdTooLarge(t *testing.T) {
	store := testutil.NewFakeStore("bucket")

	code, _, stderr := execute(t, store, append(baseArgs, "--size_threshold", "6GiB")...)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "size threshold")
	assert.Zero(t, store.Calls("GetBucketAcl"))
}

func TestCommand_InvalidFlags(t *testing.T) {
	store := testutil.NewFakeStore("bucket")

	code, _, stderr := execute(t, store, "--bucket", "bucket")

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "required")
	assert.Zero(t, store.Calls("GetBucketAcl"))
}

func TestCommand_MetricsTextfile(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "incoming/data.bin", testutil.GenerateRandomData(2048), "application/octet-stream")
	path := filepath.Join(t.TempDir(), "awsmultic.prom")

	code, _, _ := execute(t, store, append(baseArgs, "--metrics_textfile", path)...)
	require.Equal(t, ExitSuccess, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `awsmultic_transfers_total{outcome="success",strategy="single-shot"} 1`)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(&s3types.TransferResult{Outcome: s3types.OutcomeSuccess}))
	assert.Equal(t, ExitPartialSuccess, ExitCode(&s3types.TransferResult{Outcome: s3types.OutcomePartialSuccess}))
	assert.Equal(t, ExitFailure, ExitCode(&s3types.TransferResult{Outcome: s3types.OutcomeFailure}))
}
