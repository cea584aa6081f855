//go:build !unix

package audren

import (
	"fmt"
)

// heapAllocator over-allocates on the Go heap and returns an aligned window.
type heapAllocator struct{}

func newDefaultAllocator() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Alloc(size, align int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}

	if align <= 1 {
		return make([]byte, size), nil
	}

	buf := make([]byte, size+align)
	off := 0
	for !alignedTo(buf[off:], align) {
		off++
	}

	return buf[off : off+size : off+size], nil
}

func (heapAllocator) Free(b []byte) error {
	return nil
}
