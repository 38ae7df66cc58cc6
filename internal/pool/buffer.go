package pool

import (
	"sync"
	"sync/atomic"
)

// BufferPool hands out byte slices of one fixed capacity, the chunk size.
// A pool is safe for concurrent use.
type BufferPool struct {
	size int64
	pool sync.Pool

	// outstanding counts buffers handed out and not yet returned
	outstanding atomic.Int64
}

// NewBufferPool creates a pool of buffers with capacity size.
func NewBufferPool(size int64) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the capacity of buffers in this pool.
func (bp *BufferPool) Size() int64 {
	return bp.size
}

// Get returns a buffer of length Size.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	bp.outstanding.Add(1)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool.
// The buffer should not be used after calling Put. Buffers of a foreign
// capacity are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if int64(cap(buf)) != bp.size {
		return
	}
	bp.outstanding.Add(-1)
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Outstanding returns the number of buffers currently checked out.
func (bp *BufferPool) Outstanding() int64 {
	return bp.outstanding.Load()
}
