// Package source provides the byte stream a relocation reads its parts from.
package source

import (
	"context"
	"io"
)

// Info describes a source before it is read.
type Info struct {
	// Size is the number of bytes Open will yield
	Size int64

	// ContentType is carried over to the destination object
	ContentType string

	// ETag identifies the source revision, when known
	ETag string
}

// Source is a readable, sized byte stream.
type Source interface {
	// Stat returns the size and content type of the source.
	Stat(ctx context.Context) (Info, error)

	// Open returns a reader over the whole source. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)

	// String names the source in logs.
	String() string
}
