package audren

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when the memory pool or the scratch buffer cannot be allocated.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrUnsupportedFormat is returned when no candidate format is supported by the renderer.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrBufferTooLarge is returned when the mixing buffer would overflow the pool size arithmetic.
	ErrBufferTooLarge = errors.New("mixing buffer is too large")
	// ErrInvalidSpec is returned for zero or out of range stream parameters.
	ErrInvalidSpec = errors.New("invalid audio spec")
	// ErrInvalidLength is returned by Write when the data is not exactly one buffer long.
	ErrInvalidLength = errors.New("data length does not match buffer size")
	// ErrClosed is returned when using a closed device.
	ErrClosed = errors.New("device is closed")
)

// Result is a status code reported by a renderer service.
type Result uint32

// Error implements the error interface.
func (r Result) Error() string {
	return fmt.Sprintf("0x%x", uint32(r))
}

// RendererError reports a failed renderer call during Open.
type RendererError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *RendererError) Error() string {
	var code Result
	if errors.As(e.Err, &code) {
		return fmt.Sprintf("%s failed (0x%x)", e.Op, uint32(code))
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying renderer error.
func (e *RendererError) Unwrap() error {
	return e.Err
}

// Code returns the renderer status code, if the underlying error carries one.
func (e *RendererError) Code() (Result, bool) {
	var code Result
	if errors.As(e.Err, &code) {
		return code, true
	}

	return 0, false
}

func rendererError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &RendererError{Op: op, Err: err}
}
