package chunker

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	s3errors "github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/pool"
)

// ErrInvalidChunkSize is returned by New for a chunk size <= 0.
var ErrInvalidChunkSize = errors.New("chunker: chunk size must be positive")

// Chunk is one numbered slice of the source.
type Chunk struct {
	// Number is the 1-based part number
	Number int32

	// Offset is the position of the first byte in the source
	Offset int64

	// Size is the number of payload bytes
	Size int64

	once    sync.Once
	payload payload
}

// Open returns a reader positioned at the start of the payload.
// Every call returns an independent reader, so a part can be re-sent.
func (c *Chunk) Open() (io.ReadSeekCloser, error) {
	return c.payload.open()
}

// Release frees the chunk's backing storage. It is safe to call more than once.
func (c *Chunk) Release() error {
	var err error
	c.once.Do(func() {
		err = c.payload.release()
	})
	return err
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSpool stages each chunk in a temporary file under dir on fs instead of
// holding it in memory.
func WithSpool(fs billy.Filesystem, dir string) Option {
	return func(c *Chunker) {
		c.spoolFS = fs
		c.spoolDir = dir
	}
}

// WithTotal declares the number of bytes the source is expected to hold.
// The final chunk is then allocated at its exact size instead of a full
// chunk. Bytes beyond total are still read and chunked.
func WithTotal(total int64) Option {
	return func(c *Chunker) {
		c.total = total
	}
}

// WithBufferPool sets the pool in-memory chunks draw their buffers from.
// The pool's buffer size must equal the chunk size.
func WithBufferPool(bp *pool.BufferPool) Option {
	return func(c *Chunker) {
		c.buffers = bp
	}
}

// Chunker produces the chunks of one source stream.
// It is not safe for concurrent use; exactly one goroutine calls Next.
type Chunker struct {
	r      io.Reader
	size   int64
	total  int64
	next   int32
	offset int64
	done   bool

	buffers  *pool.BufferPool
	spoolFS  billy.Filesystem
	spoolDir string
}

// New creates a Chunker reading r in chunks of size bytes.
func New(r io.Reader, size int64, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}

	c := &Chunker{
		r:    r,
		size: size,
		next: 1,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.spoolFS == nil && (c.buffers == nil || c.buffers.Size() != size) {
		c.buffers = pool.NewBufferPool(size)
	}

	return c, nil
}

// Next returns the next chunk, or io.EOF once the source is exhausted.
// Read failures are returned as StorageIO errors and end the sequence.
func (c *Chunker) Next() (*Chunk, error) {
	if c.done {
		return nil, io.EOF
	}

	var (
		p   payload
		n   int64
		eof bool
		err error
	)
	if c.spoolFS != nil {
		p, n, eof, err = c.spool()
	} else {
		p, n, eof, err = c.buffer()
	}
	if err != nil {
		c.done = true
		return nil, s3errors.New("readChunk", s3errors.KindStorageIO, err).
			WithMessage(fmt.Sprintf("part %d at offset %d", c.next, c.offset))
	}
	if n == 0 {
		c.done = true
		return nil, io.EOF
	}
	c.done = eof

	chunk := &Chunk{
		Number:  c.next,
		Offset:  c.offset,
		Size:    n,
		payload: p,
	}
	c.next++
	c.offset += n

	return chunk, nil
}

// Emitted returns the number of chunks produced so far.
func (c *Chunker) Emitted() int {
	return int(c.next - 1)
}

// buffer reads the next chunk into memory.
func (c *Chunker) buffer() (payload, int64, bool, error) {
	if c.total <= 0 {
		return c.full(nil)
	}

	remaining := c.total - c.offset
	if remaining > 0 && remaining < c.size {
		return c.short(remaining)
	}
	if remaining > 0 {
		return c.full(nil)
	}

	// Past the declared total, look for trailing bytes before taking a buffer.
	var probe [1]byte
	n, err := io.ReadFull(c.r, probe[:])
	switch {
	case errors.Is(err, io.EOF):
		return nil, 0, true, nil
	case err != nil:
		return nil, 0, true, err
	}
	return c.full(probe[:n])
}

// full reads a chunk into a pooled buffer, after the bytes in prefix.
func (c *Chunker) full(prefix []byte) (payload, int64, bool, error) {
	p := &memoryPayload{buf: c.buffers.Get(), pool: c.buffers}
	copy(p.buf, prefix)

	n, err := io.ReadFull(c.r, p.buf[len(prefix):])
	p.n = len(prefix) + n
	switch {
	case err == nil:
		return p, int64(p.n), false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if p.n == 0 {
			_ = p.release()
			return nil, 0, true, nil
		}
		return p, int64(p.n), true, nil
	default:
		_ = p.release()
		return nil, 0, true, err
	}
}

// short reads the final remaining bytes into a buffer of exactly that size.
// A source running past its declared total falls back to a full chunk.
func (c *Chunker) short(remaining int64) (payload, int64, bool, error) {
	buf := make([]byte, remaining)

	n, err := io.ReadFull(c.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		return nil, 0, true, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &memoryPayload{buf: buf, n: n}, int64(n), true, nil
	case err != nil:
		return nil, 0, true, err
	}

	var probe [1]byte
	m, err := io.ReadFull(c.r, probe[:])
	switch {
	case errors.Is(err, io.EOF):
		return &memoryPayload{buf: buf, n: n}, int64(n), true, nil
	case err != nil:
		return nil, 0, true, err
	}
	return c.full(append(buf, probe[:m]...))
}

// spool copies the next chunk into a temporary file.
func (c *Chunker) spool() (payload, int64, bool, error) {
	f, err := util.TempFile(c.spoolFS, c.spoolDir, fmt.Sprintf("part-%05d-", c.next))
	if err != nil {
		return nil, 0, true, fmt.Errorf("create spool file: %w", err)
	}
	name := f.Name()

	n, copyErr := io.CopyN(f, c.r, c.size)
	closeErr := f.Close()

	eof := errors.Is(copyErr, io.EOF)
	if copyErr != nil && !eof {
		_ = c.spoolFS.Remove(name)
		return nil, 0, true, copyErr
	}
	if closeErr != nil {
		_ = c.spoolFS.Remove(name)
		return nil, 0, true, fmt.Errorf("close spool file: %w", closeErr)
	}
	if n == 0 {
		_ = c.spoolFS.Remove(name)
		return nil, 0, true, nil
	}

	return &spoolPayload{fs: c.spoolFS, name: name}, n, eof, nil
}

// Count returns the number of chunks a source of total bytes yields.
func Count(total, size int64) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + size - 1) / size)
}
