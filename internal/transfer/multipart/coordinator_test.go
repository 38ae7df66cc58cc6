package multipart

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/checksum"
	"github.com/olaaustine/awsmultic/internal/testutil"
	"github.com/olaaustine/awsmultic/s3types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mib = int(s3types.MiB)

func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}

func newTestCoordinator(store *testutil.FakeStore, cfg Config) *Coordinator {
	if cfg.BackOff == nil {
		cfg.BackOff = zeroBackOff
	}
	cfg.Logger = zerolog.Nop()
	return NewCoordinator(store, cfg)
}

func run(t *testing.T, c *Coordinator, data []byte) (*Result, error) {
	t.Helper()
	return c.Run(context.Background(), Input{
		Bucket:      "bucket",
		Key:         "archive/data.bin",
		ContentType: "application/octet-stream",
		Body:        bytesReader(data),
		Size:        int64(len(data)),
	})
}

var completedStates = []s3types.SessionState{
	s3types.StateCreated,
	s3types.StateChunking,
	s3types.StateUploading,
	s3types.StateVerifying,
	s3types.StateCompleted,
}

func TestCoordinator_TwelveMiBInFiveMiBParts(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	data := testutil.GenerateRandomData(12 * mib)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 5 * s3types.MiB}), data)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Parts)
	assert.Equal(t, int64(12*mib), result.Size)
	assert.Equal(t, completedStates, result.States)
	assert.NotEmpty(t, result.SessionID)
	assert.Contains(t, result.ETag, "-3")

	stored, ok := store.Object("bucket", "archive/data.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)
	assert.Equal(t, "application/octet-stream", store.ContentType("bucket", "archive/data.bin"))
	assert.Equal(t, []string{result.SessionID}, store.Completed())
	assert.Empty(t, store.Aborted())
	assert.Zero(t, store.ActiveUploads())
}

func TestCoordinator_PartFailsTwiceThenSucceeds(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.UploadPartHook = func(part int32, attempt int) error {
		if part == 2 && attempt <= 2 {
			return testutil.ResponseError(503)
		}
		return nil
	}
	data := testutil.GenerateRandomData(3000)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), data)
	require.NoError(t, err)
	assert.Equal(t, completedStates, result.States)
	assert.Equal(t, 3, store.PartAttempts(2))
	assert.Equal(t, 1, store.PartAttempts(1))

	stored, _ := store.Object("bucket", "archive/data.bin")
	assert.Equal(t, data, stored)
}

func TestCoordinator_LostResponseReuploadsPart(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.StoredPartHook = func(part int32, attempt int) error {
		if part == 2 && attempt == 1 {
			return testutil.ResponseError(503)
		}
		return nil
	}
	data := testutil.GenerateRandomData(3000)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), data)
	require.NoError(t, err)
	assert.Equal(t, completedStates, result.States)
	assert.Equal(t, 2, store.PartAttempts(2))
	assert.Equal(t, []string{result.SessionID}, store.Completed())

	stored, ok := store.Object("bucket", "archive/data.bin")
	require.True(t, ok)
	assert.Equal(t, data, stored)
}

func TestCoordinator_PartExhaustsRetries(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.UploadPartHook = func(part int32, _ int) error {
		if part == 2 {
			return testutil.ResponseError(500)
		}
		return nil
	}

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024, Concurrency: 1}), testutil.GenerateRandomData(8*1024))
	require.Error(t, err)
	assert.Equal(t, errors.KindTransientNetwork, errors.KindOf(err))
	assert.Equal(t, s3types.StateAborted, result.States[len(result.States)-1])
	assert.Equal(t, 3, store.PartAttempts(2))
	assert.Equal(t, []string{result.SessionID}, store.Aborted())
	assert.Zero(t, store.Calls("CompleteMultipartUpload"))

	// dispatch stops after the failure
	assert.Zero(t, store.PartAttempts(3))
	assert.Zero(t, store.PartAttempts(8))

	_, ok := store.Object("bucket", "archive/data.bin")
	assert.False(t, ok)
}

func TestCoordinator_RegistryMissingPart(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.ListPartsHook = func(parts []awstypes.Part) []awstypes.Part {
		return append(parts[:1:1], parts[2:]...)
	}

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), testutil.GenerateRandomData(3000))
	require.Error(t, err)
	assert.Equal(t, errors.KindSessionState, errors.KindOf(err))
	assert.ErrorIs(t, err, errors.ErrRegistryMismatch)
	assert.Equal(t, []s3types.SessionState{
		s3types.StateCreated,
		s3types.StateChunking,
		s3types.StateUploading,
		s3types.StateVerifying,
		s3types.StateAborted,
	}, result.States)
	assert.Zero(t, store.Calls("CompleteMultipartUpload"))
	assert.Equal(t, 1, store.Calls("AbortMultipartUpload"))
	assert.Empty(t, store.Completed())
}

func TestCoordinator_RegistryDuplicatePart(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.ListPartsHook = func(parts []awstypes.Part) []awstypes.Part {
		return append(parts, parts[0])
	}

	_, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), testutil.GenerateRandomData(3000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate part 1")
	assert.Zero(t, store.Calls("CompleteMultipartUpload"))
	assert.Len(t, store.Aborted(), 1)
}

func TestCoordinator_CorruptedPartIsResent(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	// the store rejects the first attempt of part 1 as corrupted
	store.CorruptPart = func(part int32, attempt int) bool { return part == 1 && attempt == 1 }
	data := testutil.GenerateRandomData(2048)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), data)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Parts)
	assert.Equal(t, 2, store.PartAttempts(1))

	stored, _ := store.Object("bucket", "archive/data.bin")
	assert.Equal(t, data, stored)
}

func TestCoordinator_EmptySource(t *testing.T) {
	store := testutil.NewFakeStore("bucket")

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmptySource)
	assert.Equal(t, errors.KindSessionState, errors.KindOf(err))
	assert.Equal(t, []s3types.SessionState{
		s3types.StateCreated,
		s3types.StateChunking,
		s3types.StateAborted,
	}, result.States)
	assert.Len(t, store.Aborted(), 1)
	assert.Zero(t, store.Calls("UploadPart"))
}

func TestCoordinator_CreateFails(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.CreateHook = func(string) error { return testutil.APIError("AccessDenied") }

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), []byte("data"))
	require.Error(t, err)
	assert.Equal(t, errors.KindPermission, errors.KindOf(err))
	assert.Empty(t, result.SessionID)
	assert.Empty(t, result.States)
	assert.Zero(t, store.Calls("AbortMultipartUpload"))
}

func TestCoordinator_CompleteFails(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.CompleteHook = func(string) error { return testutil.APIError("InternalError") }

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), testutil.GenerateRandomData(2000))
	require.Error(t, err)
	assert.Equal(t, s3types.StateAborted, result.States[len(result.States)-1])
	assert.Len(t, store.Aborted(), 1)
}

func TestCoordinator_AbortFailureIsLogged(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.ListPartsHook = func([]awstypes.Part) []awstypes.Part { return nil }
	store.AbortHook = func(string) error { return testutil.ResponseError(503) }

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024}), []byte("payload"))
	require.Error(t, err)
	assert.Equal(t, errors.KindSessionState, errors.KindOf(err))
	assert.Equal(t, s3types.StateAborted, result.States[len(result.States)-1])
	assert.Equal(t, 1, store.ActiveUploads())
}

func TestCoordinator_SourceReadError(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	body := io.MultiReader(bytesReader(testutil.GenerateRandomData(1500)), iotest.ErrReader(stderrors.New("disk gone")))

	result, err := newTestCoordinator(store, Config{ChunkSize: 1024}).Run(context.Background(), Input{
		Bucket: "bucket",
		Key:    "archive/data.bin",
		Body:   body,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindStorageIO, errors.KindOf(err))
	assert.Equal(t, s3types.StateAborted, result.States[len(result.States)-1])
	assert.Len(t, store.Aborted(), 1)
}

func TestCoordinator_Cancellation(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.UploadPartDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result, err := newTestCoordinator(store, Config{ChunkSize: 1024}).Run(ctx, Input{
		Bucket: "bucket",
		Key:    "archive/data.bin",
		Body:   bytesReader(testutil.GenerateRandomData(10 * 1024)),
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, errors.KindCanceled, errors.KindOf(err))
	assert.Equal(t, s3types.StateAborted, result.States[len(result.States)-1])

	// the abort runs on a detached context and still reaches the store
	assert.Equal(t, []string{result.SessionID}, store.Aborted())
	assert.Zero(t, store.ActiveUploads())
}

func TestCoordinator_ConcurrencyBound(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.UploadPartDelay = 10 * time.Millisecond

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 128, Concurrency: 3}), testutil.GenerateRandomData(128*20))
	require.NoError(t, err)
	assert.Equal(t, 20, result.Parts)
	assert.LessOrEqual(t, store.MaxInFlight(), 3)
	assert.Greater(t, store.MaxInFlight(), 1)
}

func TestCoordinator_SpoolReleasesSegments(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/spool", 0o755))
	data := testutil.GenerateRandomData(5000)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024, SpoolFS: fs, SpoolDir: "/spool"}), data)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Parts)

	entries, err := fs.ReadDir("/spool")
	require.NoError(t, err)
	assert.Empty(t, entries)

	stored, _ := store.Object("bucket", "archive/data.bin")
	assert.Equal(t, data, stored)
}

func TestCoordinator_ChecksumsDisabled(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	data := testutil.GenerateRandomData(3000)

	result, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024, Hasher: checksum.None()}), data)
	require.NoError(t, err)
	assert.Equal(t, completedStates, result.States)

	stored, _ := store.Object("bucket", "archive/data.bin")
	assert.Equal(t, data, stored)
}

func TestCoordinator_Progress(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	progress := &testutil.MockProgressTracker{}
	data := testutil.GenerateRandomData(2500)

	_, err := run(t, newTestCoordinator(store, Config{ChunkSize: 1024, Progress: progress}), data)
	require.NoError(t, err)

	updates := progress.Snapshot()
	require.Len(t, updates, 3)

	var last int64
	for _, u := range updates {
		assert.Greater(t, u.Transferred, last)
		assert.Equal(t, int64(2500), u.Total)
		last = u.Transferred
	}
	assert.Equal(t, int64(2500), last)
}

func TestCoordinator_ConcurrentRuns(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	c := newTestCoordinator(store, Config{ChunkSize: 512})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := testutil.GenerateRandomData(2000 + i)
			_, err := c.Run(context.Background(), Input{
				Bucket: "bucket",
				Key:    "archive/" + string(rune('a'+i)),
				Body:   bytesReader(data),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Completed(), 4)
}
