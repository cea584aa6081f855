package audren

import (
	"fmt"
	"math"
)

// Allocator provides the memory backing a Device.
type Allocator interface {
	// Alloc returns size bytes aligned to align. An align of 0 or 1 means no alignment requirement.
	Alloc(size, align int) ([]byte, error)
	// Free releases memory returned by Alloc.
	Free(b []byte) error
}

// DefaultAllocator maps page-aligned memory for pools and uses the Go heap otherwise.
var DefaultAllocator = newDefaultAllocator()

// PoolSize returns the size of the page-aligned pool holding both wave buffers.
func PoolSize(bufferSize uint32) (uint32, error) {
	if bufferSize >= math.MaxUint32/2 {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, bufferSize)
	}

	raw := bufferSize * NUM_WAVEBUFS

	// raw < MaxUint32-1, so adding the page mask can still overflow for the last page.
	if raw > math.MaxUint32-(PAGE_SIZE-1) {
		return 0, fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, bufferSize)
	}

	return (raw + (PAGE_SIZE - 1)) &^ (PAGE_SIZE - 1), nil
}

// MemPool is the page-aligned memory shared with the renderer.
type MemPool struct {
	buf       []byte
	id        int
	allocator Allocator
}

// allocPool allocates a pool for two buffers of bufferSize bytes.
func allocPool(a Allocator, bufferSize uint32) (*MemPool, error) {
	size, err := PoolSize(bufferSize)
	if err != nil {
		return nil, err
	}

	buf, err := a.Alloc(int(size), PAGE_SIZE)
	if err != nil {
		return nil, fmt.Errorf("%w: pool of %d bytes: %v", ErrOutOfMemory, size, err)
	}

	return &MemPool{buf: buf, id: -1, allocator: a}, nil
}

// Bytes returns the whole pool.
func (p *MemPool) Bytes() []byte {
	if p == nil {
		return nil
	}

	return p.buf
}

// Len returns the pool size in bytes.
func (p *MemPool) Len() int {
	if p == nil {
		return 0
	}

	return len(p.buf)
}

// ID returns the renderer pool id, or -1 if the pool is not registered.
func (p *MemPool) ID() int {
	if p == nil {
		return -1
	}

	return p.id
}

// free releases the pool memory.
func (p *MemPool) free() error {
	if p == nil || p.buf == nil {
		return nil
	}

	err := p.allocator.Free(p.buf)
	p.buf = nil
	p.id = -1

	return err
}
