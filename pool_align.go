package audren

import (
	"unsafe"
)

// alignedTo reports whether the first byte of b is aligned to align.
func alignedTo(b []byte, align int) bool {
	if len(b) == 0 || align <= 1 {
		return true
	}

	return uintptr(unsafe.Pointer(&b[0]))%uintptr(align) == 0
}
