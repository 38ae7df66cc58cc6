package validation

import (
	"net"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/s3types"
)

func invalid(op, message string) *errors.Error {
	return errors.New(op, errors.KindInvalidInput, errors.ErrInvalidInput).WithMessage(message)
}

// bucketRules are checked in order; the first failing rule is reported.
var bucketRules = []struct {
	failed  func(string) bool
	message string
}{
	{
		func(b string) bool { return len(b) < 3 || len(b) > 63 },
		"bucket name must be between 3 and 63 characters long",
	},
	{
		func(b string) bool { return strings.IndexFunc(b, invalidBucketRune) >= 0 },
		"bucket name can only contain lowercase letters, numbers, dots, and hyphens",
	},
	{
		func(b string) bool { return strings.ContainsAny(b[:1]+b[len(b)-1:], ".-") },
		"bucket name cannot start or end with a hyphen or dot",
	},
	{
		func(b string) bool { return net.ParseIP(b) != nil },
		"bucket name cannot be formatted as an IP address",
	},
	{
		func(b string) bool { return strings.Contains(b, "..") || strings.Contains(b, ".-") || strings.Contains(b, "-.") },
		"bucket name cannot contain adjacent periods",
	},
	{
		func(b string) bool { return strings.HasPrefix(b, "xn--") || strings.HasSuffix(b, "-s3alias") },
		"bucket name uses a reserved prefix or suffix",
	},
}

func invalidBucketRune(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-')
}

// ValidateBucketName checks that bucket follows the S3 naming rules.
func ValidateBucketName(bucket string) error {
	if bucket == "" {
		return invalid("validateBucketName", "bucket name cannot be empty")
	}
	for _, rule := range bucketRules {
		if rule.failed(bucket) {
			return invalid("validateBucketName", rule.message).WithBucket(bucket)
		}
	}
	return nil
}

// ValidateObjectKey checks that key is a usable S3 object key.
func ValidateObjectKey(key string) error {
	switch {
	case key == "":
		return invalid("validateObjectKey", "object key cannot be empty")
	case len(key) > 1024:
		return invalid("validateObjectKey", "object key cannot exceed 1024 bytes").WithKey(key)
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		return invalid("validateObjectKey", "object key cannot contain control characters").WithKey(key)
	case hasTraversal(key):
		return invalid("validateObjectKey", "object key cannot contain path traversal sequences").WithKey(key)
	case strings.HasSuffix(key, "/"):
		return invalid("validateObjectKey", "object key names a folder").WithKey(key)
	}
	return nil
}

func hasTraversal(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." {
			return true
		}
	}
	return false
}

// DestinationKey returns the key an object moves to: the source's base name
// under folder. Surrounding slashes on folder are ignored.
func DestinationKey(folder, sourceKey string) (string, error) {
	trimmed := strings.Trim(folder, "/")
	if trimmed == "" {
		return "", invalid("destinationKey", "destination folder cannot be empty")
	}
	if hasTraversal(trimmed) {
		return "", invalid("destinationKey", "destination folder cannot contain path traversal sequences").WithKey(folder)
	}

	key := trimmed + "/" + path.Base(sourceKey)
	if err := ValidateObjectKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ValidateRequest checks req and returns the destination key.
// A request with LocalPath may omit SourceKey; the file's base name then
// names the destination.
func ValidateRequest(req s3types.TransferRequest) (string, error) {
	if err := ValidateBucketName(req.Bucket); err != nil {
		return "", err
	}
	name := req.SourceKey
	if req.LocalPath == "" || name != "" {
		if err := ValidateObjectKey(name); err != nil {
			return "", err
		}
	} else {
		name = path.Base(filepath.ToSlash(req.LocalPath))
	}
	if req.ChunkSize < 0 {
		return "", invalid("validateRequest", "chunk size cannot be negative")
	}
	if req.ChunkSize > 5*s3types.GiB {
		return "", invalid("validateRequest", "chunk size cannot exceed the 5 GiB part limit")
	}
	switch req.Strategy {
	case "", s3types.StrategySingleShot, s3types.StrategyMultipart:
	default:
		return "", invalid("validateRequest", "unknown strategy "+string(req.Strategy))
	}
	if req.LocalPath != "" && req.Strategy == s3types.StrategySingleShot {
		return "", invalid("validateRequest", "a local file can only be relocated with the multipart strategy")
	}

	dst, err := DestinationKey(req.DestinationFolder, name)
	if err != nil {
		return "", err
	}
	if dst == req.SourceKey {
		return "", invalid("validateRequest", "destination equals source").WithKey(dst)
	}
	return dst, nil
}
