package source

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/s3api"
)

// Object streams an object stored in the bucket.
type Object struct {
	s3Client s3api.S3API
	bucket   string
	key      string
	etag     string
}

// NewObject creates a source reading bucket/key.
func NewObject(s3Client s3api.S3API, bucket, key string) *Object {
	return &Object{
		s3Client: s3Client,
		bucket:   bucket,
		key:      key,
	}
}

// Stat retrieves the object metadata with HeadObject.
func (o *Object) Stat(ctx context.Context) (Info, error) {
	output, err := o.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return Info{}, errors.NewObjectError("headObject", o.bucket, o.key, err).
			WithMessage("failed to get source object metadata")
	}

	o.etag = aws.ToString(output.ETag)
	return Info{
		Size:        aws.ToInt64(output.ContentLength),
		ContentType: aws.ToString(output.ContentType),
		ETag:        o.etag,
	}, nil
}

// Open starts a GetObject stream. After Stat, the read is pinned to the
// revision Stat saw so a concurrent overwrite fails instead of mixing data.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	}
	if o.etag != "" {
		input.IfMatch = aws.String(o.etag)
	}

	output, err := o.s3Client.GetObject(ctx, input)
	if err != nil {
		return nil, errors.NewObjectError("getObject", o.bucket, o.key, err)
	}
	return output.Body, nil
}

func (o *Object) String() string {
	return "s3://" + o.bucket + "/" + o.key
}
