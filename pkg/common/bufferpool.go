package common

import (
	"sync"
	"sync/atomic"
)

// FrameBufferSize fits the largest Ethernet frame a raw socket hands us
// (1518 bytes with FCS), rounded up so VLAN-tagged frames are not truncated.
const FrameBufferSize = 2048

// FrameBufferPool recycles receive buffers for raw socket reads.
var FrameBufferPool = NewBufferPool(FrameBufferSize)

// BufferPool provides a pool of reusable fixed-size byte buffers.
type BufferPool struct {
	pool      sync.Pool
	size      int
	gets      atomic.Uint64
	puts      atomic.Uint64
	allocated atomic.Uint64
}

// BufferPoolStats holds statistics about buffer pool usage.
type BufferPoolStats struct {
	Gets      uint64
	Puts      uint64
	Allocated uint64
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() any {
		bp.allocated.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Size returns the length of buffers handed out by this pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get retrieves a full-length buffer from the pool.
// The buffer should be returned with Put when done.
func (bp *BufferPool) Get() []byte {
	bp.gets.Add(1)
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool. Buffers of a foreign capacity are
// left to the garbage collector.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) < bp.size {
		return
	}
	bp.puts.Add(1)
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Stats returns the current pool statistics.
func (bp *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Gets:      bp.gets.Load(),
		Puts:      bp.puts.Load(),
		Allocated: bp.allocated.Load(),
	}
}
