//go:build unix

package audren

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapAllocator maps anonymous memory for aligned requests. Mappings are always page aligned.
type mmapAllocator struct {
	mu     sync.Mutex
	mapped map[uintptr]struct{}
}

func newDefaultAllocator() Allocator {
	return &mmapAllocator{mapped: make(map[uintptr]struct{})}
}

func (a *mmapAllocator) Alloc(size, align int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}

	if align <= 1 {
		return make([]byte, size), nil
	}

	pageSize := unix.Getpagesize()
	if align > pageSize || pageSize%align != 0 {
		return nil, fmt.Errorf("alignment %d not supported by page size %d", align, pageSize)
	}

	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes failed: %w", size, err)
	}

	a.mu.Lock()
	a.mapped[uintptr(unsafe.Pointer(&buf[0]))] = struct{}{}
	a.mu.Unlock()

	return buf, nil
}

// Free unmaps memory returned for aligned requests; heap memory is left to the garbage collector.
func (a *mmapAllocator) Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	addr := uintptr(unsafe.Pointer(&b[0]))

	a.mu.Lock()
	_, ok := a.mapped[addr]
	delete(a.mapped, addr)
	a.mu.Unlock()

	if !ok {
		return nil
	}

	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}

	return nil
}
