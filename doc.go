// Package awsmultic relocates objects inside an S3 bucket.
//
// A transfer moves one source object under a destination folder of the same
// bucket. Objects below the size threshold are copied server side with
// CopyObject and the source is deleted. Larger objects, and sources read from
// the local filesystem, are streamed through a multipart upload session: the
// byte stream is cut into fixed-size parts, each part is uploaded with a
// SHA-256 checksum by a bounded pool of workers, the store's part registry is
// verified against what was sent, and only then is the session completed.
// Any failure after the session exists aborts it.
//
// Every call to Transfer yields exactly one verdict:
//
//   - Success: the object exists at the destination only
//   - PartialSuccess: the object exists at the destination, but the source
//     could not be removed and is reported in DuplicateAt
//   - Failure: no destination object was created; Err carries the kind
//
// Example usage:
//
//	client, err := awsmultic.New(ctx,
//	    awsmultic.WithRegion("eu-west-1"),
//	    awsmultic.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	result := client.Transfer(ctx, s3types.TransferRequest{
//	    Bucket:            "media",
//	    SourceKey:         "incoming/video.mp4",
//	    DestinationFolder: "archive",
//	})
//	if !result.Succeeded() {
//	    return result.Err
//	}
package awsmultic
