package multipart

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/s3api"
)

// fetchRegistry returns every part the store holds for session.
func fetchRegistry(ctx context.Context, client s3api.S3API, session *Session) ([]awstypes.Part, error) {
	paginator := s3.NewListPartsPaginator(client, &s3.ListPartsInput{
		Bucket:   aws.String(session.Bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.ID),
	})

	var parts []awstypes.Part
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewObjectError("listParts", session.Bucket, session.Key, err)
		}
		parts = append(parts, page.Parts...)
	}
	return parts, nil
}

// verifyRegistry checks the store's registry against the parts sent and
// returns the completion manifest built from the registry. The registry must
// hold exactly one entry for every part 1..len(sent). When checksums is set,
// each registry checksum must equal the digest the part was sent with.
func verifyRegistry(
	registry []awstypes.Part,
	sent []*PartRecord,
	checksums bool,
) ([]awstypes.CompletedPart, error) {
	var (
		problems []string
		seen     = make(map[int32]int, len(registry))
		manifest = make([]awstypes.CompletedPart, 0, len(registry))
	)

	for _, part := range registry {
		n := aws.ToInt32(part.PartNumber)
		seen[n]++
		if seen[n] > 1 {
			if seen[n] == 2 {
				problems = append(problems, fmt.Sprintf("duplicate part %d", n))
			}
			continue
		}
		if n < 1 || int(n) > len(sent) {
			problems = append(problems, fmt.Sprintf("unexpected part %d", n))
			continue
		}

		record := sent[n-1]
		if record == nil {
			problems = append(problems, fmt.Sprintf("part %d was never confirmed", n))
			continue
		}
		if etag := aws.ToString(part.ETag); record.ETag != "" && etag != record.ETag {
			problems = append(problems, fmt.Sprintf("part %d etag %s, sent %s", n, etag, record.ETag))
			continue
		}

		completed := awstypes.CompletedPart{
			PartNumber: aws.Int32(n),
			ETag:       part.ETag,
		}
		if checksums {
			stored := aws.ToString(part.ChecksumSHA256)
			if stored != record.Checksum {
				problems = append(problems, fmt.Sprintf("part %d checksum %q, sent %q", n, stored, record.Checksum))
				continue
			}
			completed.ChecksumSHA256 = part.ChecksumSHA256
		}
		manifest = append(manifest, completed)
	}

	for n := int32(1); int(n) <= len(sent); n++ {
		if seen[n] == 0 {
			problems = append(problems, fmt.Sprintf("missing part %d", n))
		}
	}

	if len(problems) > 0 {
		return nil, errors.New("verifyParts", errors.KindSessionState,
			fmt.Errorf("%w: %s", errors.ErrRegistryMismatch, strings.Join(problems, "; ")))
	}

	sort.Slice(manifest, func(i, j int) bool {
		return aws.ToInt32(manifest[i].PartNumber) < aws.ToInt32(manifest[j].PartNumber)
	})
	return manifest, nil
}
