package server

import "sync"

// BufferPool recycles fixed-capacity connection buffers.
type BufferPool struct {
	size int
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, 0, size)
		return &buf
	}
	return bp
}

// Get returns an empty buffer with the pool's capacity.
func (bp *BufferPool) Get() []byte {
	buf := bp.pool.Get().(*[]byte)
	return (*buf)[:0]
}

// Put returns a buffer to the pool. Buffers of another capacity are
// left to the GC.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:0]
	bp.pool.Put(&buf)
}

func (bp *BufferPool) Size() int {
	return bp.size
}
