package testutil

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// GenerateRandomData generates size pseudo-random bytes. The same size always
// yields the same bytes so failures are reproducible.
func GenerateRandomData(size int) []byte {
	rng := rand.New(rand.NewSource(int64(size)))
	data := make([]byte, size)
	_, _ = rng.Read(data)
	return data
}

// CalculateETag calculates the ETag S3 reports for a single-part object.
func CalculateETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h)
}

// CalculateSHA256 returns the base64 SHA-256 digest S3 uses for ChecksumSHA256.
func CalculateSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(h[:])
}

// APIError returns a store error with the given code, as the SDK surfaces it.
func APIError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// ResponseError returns a transport level error carrying an HTTP status.
func ResponseError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      errors.New(http.StatusText(status)),
	}
}

// CreateHeadObjectOutput creates a test HeadObjectOutput structure.
func CreateHeadObjectOutput(size int64, contentType, etag string) *s3.HeadObjectOutput {
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(size),
		LastModified:  aws.Time(time.Now()),
		ContentType:   aws.String(contentType),
		ETag:          aws.String(etag),
	}
}

// CreateGetObjectOutput creates a test GetObjectOutput structure.
func CreateGetObjectOutput(data []byte, contentType string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ETag:          aws.String(CalculateETag(data)),
	}
}
