package chunker

import (
	"bytes"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/olaaustine/awsmultic/internal/pool"
)

type payload interface {
	open() (io.ReadSeekCloser, error)
	release() error
}

type memoryPayload struct {
	buf []byte
	n   int

	// pool is nil for buffers sized to a short final chunk
	pool *pool.BufferPool
}

type nopReadSeekCloser struct {
	*bytes.Reader
}

func (nopReadSeekCloser) Close() error { return nil }

func (p *memoryPayload) open() (io.ReadSeekCloser, error) {
	return nopReadSeekCloser{bytes.NewReader(p.buf[:p.n])}, nil
}

func (p *memoryPayload) release() error {
	if p.pool != nil && p.buf != nil {
		p.pool.Put(p.buf)
	}
	p.buf = nil
	return nil
}

type spoolPayload struct {
	fs   billy.Filesystem
	name string
}

func (p *spoolPayload) open() (io.ReadSeekCloser, error) {
	return p.fs.Open(p.name)
}

func (p *spoolPayload) release() error {
	return p.fs.Remove(p.name)
}
