package multipart

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/testutil"
)

func sentParts(n int) []*PartRecord {
	records := make([]*PartRecord, n)
	for i := range records {
		num := int32(i + 1)
		records[i] = &PartRecord{
			Number:   num,
			ETag:     `"etag-` + string(rune('0'+num)) + `"`,
			Checksum: "sum-" + string(rune('0'+num)),
			Size:     10,
		}
	}
	return records
}

func registryFor(records []*PartRecord) []awstypes.Part {
	parts := make([]awstypes.Part, 0, len(records))
	for _, r := range records {
		parts = append(parts, awstypes.Part{
			PartNumber:     aws.Int32(r.Number),
			ETag:           aws.String(r.ETag),
			ChecksumSHA256: aws.String(r.Checksum),
			Size:           aws.Int64(r.Size),
		})
	}
	return parts
}

func TestVerifyRegistry_Exact(t *testing.T) {
	sent := sentParts(3)
	registry := registryFor(sent)
	// out of order listing still produces an ascending manifest
	registry[0], registry[2] = registry[2], registry[0]

	manifest, err := verifyRegistry(registry, sent, true)
	require.NoError(t, err)
	require.Len(t, manifest, 3)
	for i, cp := range manifest {
		assert.Equal(t, int32(i+1), aws.ToInt32(cp.PartNumber))
		assert.Equal(t, sent[i].ETag, aws.ToString(cp.ETag))
		assert.Equal(t, sent[i].Checksum, aws.ToString(cp.ChecksumSHA256))
	}
}

func TestVerifyRegistry_Mismatches(t *testing.T) {
	tests := []struct {
		name     string
		registry func(sent []*PartRecord) []awstypes.Part
		contains string
	}{
		{
			name: "missing part",
			registry: func(sent []*PartRecord) []awstypes.Part {
				r := registryFor(sent)
				return append(r[:1], r[2:]...)
			},
			contains: "missing part 2",
		},
		{
			name: "duplicate part",
			registry: func(sent []*PartRecord) []awstypes.Part {
				r := registryFor(sent)
				return append(r, r[1])
			},
			contains: "duplicate part 2",
		},
		{
			name: "extra part",
			registry: func(sent []*PartRecord) []awstypes.Part {
				r := registryFor(sent)
				return append(r, awstypes.Part{PartNumber: aws.Int32(4), ETag: aws.String(`"x"`)})
			},
			contains: "unexpected part 4",
		},
		{
			name: "checksum differs",
			registry: func(sent []*PartRecord) []awstypes.Part {
				r := registryFor(sent)
				r[2].ChecksumSHA256 = aws.String("other")
				return r
			},
			contains: "part 3 checksum",
		},
		{
			name: "etag differs",
			registry: func(sent []*PartRecord) []awstypes.Part {
				r := registryFor(sent)
				r[0].ETag = aws.String(`"stale"`)
				return r
			},
			contains: "part 1 etag",
		},
		{
			name:     "empty registry",
			registry: func([]*PartRecord) []awstypes.Part { return nil },
			contains: "missing part 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent := sentParts(3)
			manifest, err := verifyRegistry(tt.registry(sent), sent, true)
			require.Error(t, err)
			assert.Nil(t, manifest)
			assert.ErrorIs(t, err, errors.ErrRegistryMismatch)
			assert.Equal(t, errors.KindSessionState, errors.KindOf(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestVerifyRegistry_ChecksumsDisabled(t *testing.T) {
	sent := sentParts(2)
	registry := registryFor(sent)
	registry[0].ChecksumSHA256 = nil
	registry[1].ChecksumSHA256 = nil

	manifest, err := verifyRegistry(registry, sent, false)
	require.NoError(t, err)
	require.Len(t, manifest, 2)
	assert.Nil(t, manifest[0].ChecksumSHA256)
}

func TestFetchRegistry_Paginates(t *testing.T) {
	store := testutil.NewFakeStore("bucket")
	store.ListPageSize = 2

	coordinator := newTestCoordinator(store, Config{ChunkSize: 4})
	result, err := coordinator.Run(context.Background(), Input{
		Bucket: "bucket",
		Key:    "dest/file",
		Body:   bytesReader(testutil.GenerateRandomData(18)),
		Size:   18,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Parts)
	assert.Equal(t, 3, store.Calls("ListParts"))
}
