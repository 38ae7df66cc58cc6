package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/olaaustine/awsmultic/internal/s3api"
)

type fakeObject struct {
	data        []byte
	contentType string
	etag        string
}

type fakePart struct {
	data     []byte
	etag     string
	checksum string
}

type fakeUpload struct {
	bucket      string
	key         string
	contentType string
	algorithm   types.ChecksumAlgorithm
	parts       map[int32]*fakePart
}

// FakeStore is an in-memory S3 bucket store with multipart upload semantics.
// Re-uploading a part number replaces the earlier upload of that part.
// Hooks inject failures; a hook returning an error fails the call before the
// store is modified.
type FakeStore struct {
	mu       sync.Mutex
	buckets  map[string]struct{}
	objects  map[string]*fakeObject
	uploads  map[string]*fakeUpload
	calls    map[string]int
	attempts map[int32]int
	aborted  []string
	complete []string

	inflight    int
	maxInflight int

	// ListPageSize bounds the parts returned per ListParts page (default 1000)
	ListPageSize int32

	// UploadPartDelay stalls every UploadPart call, honoring cancellation
	UploadPartDelay time.Duration

	ACLHook        func(bucket string) error
	CreateHook     func(key string) error
	UploadPartHook func(partNumber int32, attempt int) error
	// StoredPartHook runs after a part is stored; an error models a lost response
	StoredPartHook func(partNumber int32, attempt int) error
	// CorruptPart flips a byte of the received part body when it returns true
	CorruptPart   func(partNumber int32, attempt int) bool
	ListPartsHook func(parts []types.Part) []types.Part
	CompleteHook  func(uploadID string) error
	AbortHook     func(uploadID string) error
	CopyHook      func(source, destination string) error
	DeleteHook    func(key string) error
	BodyHook      func(r io.Reader) io.Reader
}

// NewFakeStore creates a store holding the given empty buckets.
func NewFakeStore(buckets ...string) *FakeStore {
	f := &FakeStore{
		buckets:  make(map[string]struct{}),
		objects:  make(map[string]*fakeObject),
		uploads:  make(map[string]*fakeUpload),
		calls:    make(map[string]int),
		attempts: make(map[int32]int),
	}
	for _, b := range buckets {
		f.buckets[b] = struct{}{}
	}
	return f
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// PutObject seeds an object.
func (f *FakeStore) PutObject(bucket, key string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = struct{}{}
	f.objects[objectKey(bucket, key)] = &fakeObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		etag:        CalculateETag(data),
	}
}

// Object returns a copy of the stored object bytes.
func (f *FakeStore) Object(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// ContentType returns the content type stored with an object.
func (f *FakeStore) ContentType(bucket, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obj, ok := f.objects[objectKey(bucket, key)]; ok {
		return obj.contentType
	}
	return ""
}

// Calls returns how many times op was invoked.
func (f *FakeStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// PartAttempts returns how many UploadPart calls targeted partNumber.
func (f *FakeStore) PartAttempts(partNumber int32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[partNumber]
}

// Aborted returns the IDs of aborted uploads in abort order.
func (f *FakeStore) Aborted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborted...)
}

// Completed returns the IDs of completed uploads in completion order.
func (f *FakeStore) Completed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.complete...)
}

// ActiveUploads returns the number of uploads neither completed nor aborted.
func (f *FakeStore) ActiveUploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

// MaxInFlight returns the highest number of concurrent UploadPart calls seen.
func (f *FakeStore) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *FakeStore) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

// GetBucketAcl implements s3api.S3API.
func (f *FakeStore) GetBucketAcl(
	_ context.Context,
	params *s3.GetBucketAclInput,
	_ ...func(*s3.Options),
) (*s3.GetBucketAclOutput, error) {
	f.record("GetBucketAcl")
	bucket := aws.ToString(params.Bucket)
	if f.ACLHook != nil {
		if err := f.ACLHook(bucket); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; !ok {
		return nil, APIError("NoSuchBucket")
	}
	return &s3.GetBucketAclOutput{
		Owner: &types.Owner{ID: aws.String("owner")},
	}, nil
}

// HeadObject implements s3api.S3API.
func (f *FakeStore) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	f.record("HeadObject")

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key))]
	if !ok {
		return nil, APIError("NotFound")
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(obj.etag),
	}, nil
}

// GetObject implements s3api.S3API.
func (f *FakeStore) GetObject(
	_ context.Context,
	params *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	f.record("GetObject")

	f.mu.Lock()
	obj, ok := f.objects[objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key))]
	if !ok {
		f.mu.Unlock()
		return nil, APIError("NoSuchKey")
	}
	if params.IfMatch != nil && aws.ToString(params.IfMatch) != obj.etag {
		f.mu.Unlock()
		return nil, APIError("PreconditionFailed")
	}
	data := append([]byte(nil), obj.data...)
	f.mu.Unlock()

	var body io.Reader = bytes.NewReader(data)
	if f.BodyHook != nil {
		body = f.BodyHook(body)
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(body),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(obj.etag),
	}, nil
}

// CopyObject implements s3api.S3API.
func (f *FakeStore) CopyObject(
	_ context.Context,
	params *s3.CopyObjectInput,
	_ ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	f.record("CopyObject")
	source, err := url.PathUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, APIError("InvalidArgument")
	}
	destination := objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if f.CopyHook != nil {
		if err := f.CopyHook(source, destination); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[strings.TrimPrefix(source, "/")]
	if !ok {
		return nil, APIError("NoSuchKey")
	}
	contentType := obj.contentType
	if params.ContentType != nil {
		contentType = aws.ToString(params.ContentType)
	}
	f.objects[destination] = &fakeObject{
		data:        append([]byte(nil), obj.data...),
		contentType: contentType,
		etag:        obj.etag,
	}
	return &s3.CopyObjectOutput{
		CopyObjectResult: &types.CopyObjectResult{ETag: aws.String(obj.etag)},
	}, nil
}

// DeleteObject implements s3api.S3API. Deleting a missing key succeeds.
func (f *FakeStore) DeleteObject(
	_ context.Context,
	params *s3.DeleteObjectInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	f.record("DeleteObject")
	if f.DeleteHook != nil {
		if err := f.DeleteHook(aws.ToString(params.Key)); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key)))
	return &s3.DeleteObjectOutput{}, nil
}

// CreateMultipartUpload implements s3api.S3API.
func (f *FakeStore) CreateMultipartUpload(
	_ context.Context,
	params *s3.CreateMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	f.record("CreateMultipartUpload")
	if f.CreateHook != nil {
		if err := f.CreateHook(aws.ToString(params.Key)); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := aws.ToString(params.Bucket)
	if _, ok := f.buckets[bucket]; !ok {
		return nil, APIError("NoSuchBucket")
	}

	id := uuid.NewString()
	f.uploads[id] = &fakeUpload{
		bucket:      bucket,
		key:         aws.ToString(params.Key),
		contentType: aws.ToString(params.ContentType),
		algorithm:   params.ChecksumAlgorithm,
		parts:       make(map[int32]*fakePart),
	}
	return &s3.CreateMultipartUploadOutput{
		Bucket:            params.Bucket,
		Key:               params.Key,
		UploadId:          aws.String(id),
		ChecksumAlgorithm: params.ChecksumAlgorithm,
	}, nil
}

// UploadPart implements s3api.S3API.
func (f *FakeStore) UploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	_ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	partNumber := aws.ToInt32(params.PartNumber)

	f.mu.Lock()
	f.calls["UploadPart"]++
	f.attempts[partNumber]++
	attempt := f.attempts[partNumber]
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.UploadPartDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.UploadPartDelay):
		}
	}
	if f.UploadPartHook != nil {
		if err := f.UploadPartHook(partNumber, attempt); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.CorruptPart != nil && f.CorruptPart(partNumber, attempt) && len(data) > 0 {
		data[0] ^= 0xff
	}
	if params.ContentLength != nil && aws.ToInt64(params.ContentLength) != int64(len(data)) {
		return nil, APIError("IncompleteBody")
	}

	checksum := CalculateSHA256(data)
	if params.ChecksumSHA256 != nil && aws.ToString(params.ChecksumSHA256) != checksum {
		return nil, APIError("BadDigest")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	upload, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, APIError("NoSuchUpload")
	}
	part := &fakePart{
		data: data,
		etag: CalculateETag(data),
	}
	if upload.algorithm == types.ChecksumAlgorithmSha256 {
		part.checksum = checksum
	}
	upload.parts[partNumber] = part

	if f.StoredPartHook != nil {
		if err := f.StoredPartHook(partNumber, attempt); err != nil {
			return nil, err
		}
	}

	output := &s3.UploadPartOutput{ETag: aws.String(part.etag)}
	if part.checksum != "" {
		output.ChecksumSHA256 = aws.String(part.checksum)
	}
	return output, nil
}

// ListParts implements s3api.S3API.
func (f *FakeStore) ListParts(
	_ context.Context,
	params *s3.ListPartsInput,
	_ ...func(*s3.Options),
) (*s3.ListPartsOutput, error) {
	f.record("ListParts")

	f.mu.Lock()
	upload, ok := f.uploads[aws.ToString(params.UploadId)]
	if !ok {
		f.mu.Unlock()
		return nil, APIError("NoSuchUpload")
	}
	numbers := make([]int32, 0, len(upload.parts))
	for n := range upload.parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	parts := make([]types.Part, 0, len(numbers))
	for _, n := range numbers {
		p := upload.parts[n]
		part := types.Part{
			PartNumber: aws.Int32(n),
			ETag:       aws.String(p.etag),
			Size:       aws.Int64(int64(len(p.data))),
		}
		if p.checksum != "" {
			part.ChecksumSHA256 = aws.String(p.checksum)
		}
		parts = append(parts, part)
	}
	f.mu.Unlock()

	if f.ListPartsHook != nil {
		parts = f.ListPartsHook(parts)
	}

	var marker int32
	if params.PartNumberMarker != nil {
		n, err := strconv.ParseInt(aws.ToString(params.PartNumberMarker), 10, 32)
		if err != nil {
			return nil, APIError("InvalidArgument")
		}
		marker = int32(n)
	}
	pageSize := f.ListPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	if params.MaxParts != nil && aws.ToInt32(params.MaxParts) < pageSize {
		pageSize = aws.ToInt32(params.MaxParts)
	}

	start := 0
	for start < len(parts) && aws.ToInt32(parts[start].PartNumber) <= marker {
		start++
	}
	end := start + int(pageSize)
	if end > len(parts) {
		end = len(parts)
	}

	output := &s3.ListPartsOutput{
		Bucket:      params.Bucket,
		Key:         params.Key,
		UploadId:    params.UploadId,
		Parts:       parts[start:end],
		IsTruncated: aws.Bool(end < len(parts)),
	}
	if end < len(parts) && end > start {
		output.NextPartNumberMarker = aws.String(strconv.Itoa(int(aws.ToInt32(parts[end-1].PartNumber))))
	}
	return output, nil
}

// CompleteMultipartUpload implements s3api.S3API. Parts must be listed in
// ascending order and match what the store holds.
func (f *FakeStore) CompleteMultipartUpload(
	_ context.Context,
	params *s3.CompleteMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	f.record("CompleteMultipartUpload")
	id := aws.ToString(params.UploadId)
	if f.CompleteHook != nil {
		if err := f.CompleteHook(id); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	upload, ok := f.uploads[id]
	if !ok {
		return nil, APIError("NoSuchUpload")
	}
	if params.MultipartUpload == nil || len(params.MultipartUpload.Parts) == 0 {
		return nil, APIError("MalformedXML")
	}

	var (
		data    []byte
		digests []byte
		last    int32
	)
	for _, cp := range params.MultipartUpload.Parts {
		n := aws.ToInt32(cp.PartNumber)
		if n <= last {
			return nil, APIError("InvalidPartOrder")
		}
		last = n

		p, ok := upload.parts[n]
		if !ok || aws.ToString(cp.ETag) != p.etag {
			return nil, APIError("InvalidPart")
		}
		if cp.ChecksumSHA256 != nil && aws.ToString(cp.ChecksumSHA256) != p.checksum {
			return nil, APIError("InvalidPart")
		}
		data = append(data, p.data...)
		sum := md5.Sum(p.data)
		digests = append(digests, sum[:]...)
	}

	etag := fmt.Sprintf(`"%x-%d"`, md5.Sum(digests), len(params.MultipartUpload.Parts))
	f.objects[objectKey(upload.bucket, upload.key)] = &fakeObject{
		data:        data,
		contentType: upload.contentType,
		etag:        etag,
	}
	delete(f.uploads, id)
	f.complete = append(f.complete, id)

	return &s3.CompleteMultipartUploadOutput{
		Bucket:   aws.String(upload.bucket),
		Key:      aws.String(upload.key),
		ETag:     aws.String(etag),
		Location: aws.String("https://" + upload.bucket + ".s3.amazonaws.com/" + upload.key),
	}, nil
}

// AbortMultipartUpload implements s3api.S3API.
func (f *FakeStore) AbortMultipartUpload(
	_ context.Context,
	params *s3.AbortMultipartUploadInput,
	_ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	f.record("AbortMultipartUpload")
	id := aws.ToString(params.UploadId)
	if f.AbortHook != nil {
		if err := f.AbortHook(id); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.uploads[id]; !ok {
		return nil, APIError("NoSuchUpload")
	}
	delete(f.uploads, id)
	f.aborted = append(f.aborted, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

var _ s3api.S3API = (*FakeStore)(nil)
