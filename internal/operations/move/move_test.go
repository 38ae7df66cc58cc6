package move

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/testutil"
)

func TestMover_Move(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	data := testutil.GenerateRandomData(2048)
	store.PutObject("bucket", "incoming/report.csv", data, "text/csv")

	result, err := NewMover(store, zerolog.Nop()).Move(context.Background(), "bucket", "incoming/report.csv", "archive/report.csv", false)
	require.NoError(t, err)

	assert.Equal(t, "archive/report.csv", result.Object.Key)
	assert.Equal(t, testutil.CalculateETag(data), result.Object.ETag)
	assert.Nil(t, result.DuplicateAt)

	moved, ok := store.Object("bucket", "archive/report.csv")
	require.True(t, ok)
	assert.Equal(t, data, moved)
	assert.Equal(t, "text/csv", store.ContentType("bucket", "archive/report.csv"))

	_, ok = store.Object("bucket", "incoming/report.csv")
	assert.False(t, ok)
}

func TestMover_KeepSource(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "a", []byte("x"), "")

	_, err := NewMover(store, zerolog.Nop()).Move(context.Background(), "bucket", "a", "dir/a", true)
	require.NoError(t, err)

	_, ok := store.Object("bucket", "a")
	assert.True(t, ok)
	assert.Zero(t, store.Calls("DeleteObject"))
}

func TestMover_DeleteFails(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.PutObject("bucket", "incoming/a", []byte("payload"), "")
	store.DeleteHook = func(string) error { return testutil.APIError("AccessDenied") }

	result, err := NewMover(store, zerolog.Nop()).Move(context.Background(), "bucket", "incoming/a", "archive/a", false)
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, errors.KindPartialCleanup, errors.KindOf(err))
	require.NotNil(t, result.DuplicateAt)
	assert.Equal(t, "incoming/a", result.DuplicateAt.Key)

	_, ok := store.Object("bucket", "archive/a")
	assert.True(t, ok)
	_, ok = store.Object("bucket", "incoming/a")
	assert.True(t, ok)
}

func TestMover_CopyFails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Kind
	}{
		{"denied", testutil.APIError("AccessDenied"), errors.KindPermission},
		{"missing source", testutil.APIError("NoSuchKey"), errors.KindStore},
		{"unavailable", testutil.ResponseError(503), errors.KindTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewFakeStore("bucket")
			store.PutObject("bucket", "a", []byte("x"), "")
			store.CopyHook = func(string, string) error { return tt.err }

			result, err := NewMover(store, zerolog.Nop()).Move(context.Background(), "bucket", "a", "dir/a", false)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.want, errors.KindOf(err))
			assert.Zero(t, store.Calls("DeleteObject"))
		})
	}
}

func TestMover_CopySourceEscaped(t *testing.T) {
	var copySource string
	client := &testutil.MockS3Client{
		CopyObjectFunc: func(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
			copySource = aws.ToString(in.CopySource)
			return &s3.CopyObjectOutput{}, nil
		},
	}

	_, err := NewMover(client, zerolog.Nop()).Copy(context.Background(), "bucket", "in box/report #1.csv", "out/report.csv")
	require.NoError(t, err)
	assert.Equal(t, "bucket/in%20box/report%20%231.csv", copySource)
}
