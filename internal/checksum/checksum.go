// Package checksum computes the per-part integrity digests sent with
// UploadPart so the store can reject corrupted transmissions at write time.
package checksum

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"sync"

	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/sha256-simd"

	"github.com/olaaustine/awsmultic/s3types"
)

// Hasher computes the wire checksum of a part payload.
type Hasher interface {
	// Algorithm is the value sent as the session checksum algorithm.
	// Empty when checksums are disabled.
	Algorithm() awstypes.ChecksumAlgorithm

	// Digest consumes r and returns the encoded digest.
	Digest(r io.Reader) (string, error)
}

var sha256Pool = sync.Pool{
	New: func() any {
		return sha256.New()
	},
}

type sha256Hasher struct{}

// SHA256 returns a Hasher producing base64 encoded SHA-256 digests, the
// format of the x-amz-checksum-sha256 header.
func SHA256() Hasher {
	return sha256Hasher{}
}

func (sha256Hasher) Algorithm() awstypes.ChecksumAlgorithm {
	return awstypes.ChecksumAlgorithmSha256
}

func (sha256Hasher) Digest(r io.Reader) (string, error) {
	h := sha256Pool.Get().(hash.Hash)
	defer func() {
		h.Reset()
		sha256Pool.Put(h)
	}()

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum: read payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

type noneHasher struct{}

// None returns a Hasher that disables part checksums.
func None() Hasher {
	return noneHasher{}
}

func (noneHasher) Algorithm() awstypes.ChecksumAlgorithm {
	return ""
}

func (noneHasher) Digest(io.Reader) (string, error) {
	return "", nil
}

// ForAlgorithm maps the configured algorithm onto a Hasher.
func ForAlgorithm(algorithm s3types.ChecksumAlgorithm) (Hasher, error) {
	switch algorithm {
	case "", s3types.ChecksumSHA256:
		return SHA256(), nil
	case s3types.ChecksumNone:
		return None(), nil
	default:
		return nil, fmt.Errorf("checksum: unsupported algorithm %q", algorithm)
	}
}

// Bytes is a convenience for digesting an in-memory payload.
func Bytes(h Hasher, payload []byte) string {
	sum, _ := h.Digest(bytes.NewReader(payload))
	return sum
}
