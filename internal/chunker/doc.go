// Package chunker splits a source stream into the numbered parts of a
// multipart upload.
//
// A Chunker is a single-producer, forward-only sequence: every call to Next
// consumes the next Size bytes of the source, so chunks cover the source
// exactly once, in order, with no overlap and no gap. Only the final chunk
// may be shorter than the configured size.
//
// Each chunk owns a scoped resource (a pooled buffer or a spooled temporary
// file) that must be released with Release once the part has been uploaded
// or the pipeline has given up on it.
package chunker
