// Package multipart relocates an object through an S3 multipart upload session.
//
// A Coordinator owns one session per call: it reads the source through a
// chunker, uploads the chunks as numbered parts on a bounded worker pool,
// checks the store's part registry against what was sent and then either
// completes or aborts the session. Completion only ever uses the registry
// returned by ListParts, never local bookkeeping alone.
package multipart
