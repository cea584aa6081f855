package audren

import (
	"fmt"
	"math"

	"github.com/decred/slog"
)

// Option configures a Device at open time.
type Option func(*Device)

// WithLogger sets the logger used by the device. The default logger is disabled.
func WithLogger(log slog.Logger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// WithAllocator sets the allocator backing the memory pool and the scratch buffer.
func WithAllocator(a Allocator) Option {
	return func(d *Device) {
		if a != nil {
			d.allocator = a
		}
	}
}

// WithRendererConfig overrides the renderer session configuration.
func WithRendererConfig(config RendererConfig) Option {
	return func(d *Device) {
		d.rendererConfig = config
	}
}

// Device is an open audio output device.
// A Device must only be written from one goroutine at a time.
type Device struct {
	spec       Spec
	frameSize  uint32
	bufferSize uint32

	renderer       Renderer
	rendererConfig RendererConfig
	driver         Driver
	allocator      Allocator
	pool           *MemPool
	scratch        []byte
	pending        int // Bytes staged in scratch by the streaming helpers.
	bufs           [NUM_WAVEBUFS]WaveBuf

	sessionStarted bool
	closed         bool

	submitted uint64
	restarts  uint64
	stalls    uint64

	log slog.Logger
}

// Open initializes a renderer session and opens a playback device on it.
// The requested format is negotiated against the formats the renderer supports; read the effective
// stream parameters back with Spec. On failure every resource acquired so far is released.
func Open(r Renderer, spec Spec, opts ...Option) (*Device, error) {
	if r == nil {
		return nil, fmt.Errorf("renderer cannot be nil")
	}

	if spec.Channels != 1 && spec.Channels != 2 {
		return nil, fmt.Errorf("%w: %d channels, expected 1 or 2", ErrInvalidSpec, spec.Channels)
	}

	if spec.Rate == 0 || spec.SampleFrames == 0 {
		return nil, fmt.Errorf("%w: rate=%d, sample frames=%d", ErrInvalidSpec, spec.Rate, spec.SampleFrames)
	}

	d := &Device{
		spec:           spec,
		renderer:       r,
		rendererConfig: DefaultRendererConfig,
		allocator:      DefaultAllocator,
		log:            slog.Disabled,
	}

	for _, opt := range opts {
		opt(d)
	}

	if err := d.open(); err != nil {
		_ = d.Close()

		return nil, err
	}

	return d, nil
}

func (d *Device) open() error {
	if err := d.renderer.Initialize(&d.rendererConfig); err != nil {
		return rendererError("audrenInitialize", err)
	}
	d.sessionStarted = true

	drv, err := d.renderer.CreateDriver(&d.rendererConfig, FINAL_MIX_CHANNELS)
	if err != nil {
		return rendererError("audrvCreate", err)
	}
	d.driver = drv

	format, err := NegotiateFormat(d.spec.Format, SupportedFormats)
	if err != nil {
		return err
	}

	if format != d.spec.Format {
		d.log.Debugf("Requested format %s, using %s", d.spec.Format, format)
	}
	d.spec.Format = format
	d.frameSize = d.spec.FrameSize()

	bufferSize := uint64(d.spec.SampleFrames) * uint64(d.frameSize)
	if bufferSize >= math.MaxUint32/2 {
		return fmt.Errorf("%w: %d bytes", ErrBufferTooLarge, bufferSize)
	}
	d.bufferSize = uint32(bufferSize)

	d.pool, err = allocPool(d.allocator, d.bufferSize)
	if err != nil {
		return err
	}

	d.scratch, err = d.allocator.Alloc(int(d.bufferSize), 1)
	if err != nil {
		return fmt.Errorf("%w: scratch buffer of %d bytes: %v", ErrOutOfMemory, d.bufferSize, err)
	}

	for i := range d.bufs {
		wb := &d.bufs[i]
		wb.DataRaw = d.pool.Bytes()
		wb.Size = uint64(d.bufferSize) * NUM_WAVEBUFS
		wb.StartSampleOffset = uint32(i) * d.spec.SampleFrames
		wb.EndSampleOffset = wb.StartSampleOffset + d.spec.SampleFrames
		wb.SetState(WAVEBUF_STATE_FREE)
	}

	id, err := d.driver.MemPoolAdd(d.pool.Bytes())
	if err != nil {
		return rendererError("audrvMemPoolAdd", err)
	}
	d.pool.id = id

	if err := d.driver.MemPoolAttach(id); err != nil {
		return rendererError("audrvMemPoolAttach", err)
	}

	if _, err := d.driver.DeviceSinkAdd(DEFAULT_DEVICE_NAME, []uint8{0, 1}); err != nil {
		return rendererError("audrvDeviceSinkAdd", err)
	}

	if err := d.renderer.StartAudioRenderer(); err != nil {
		return rendererError("audrenStartAudioRenderer", err)
	}

	if err := configureVoice(d.driver, d.spec); err != nil {
		return err
	}

	d.log.Debugf("Opened device: %s, %d channels, %d Hz, %d frames per buffer (%d bytes), pool %d bytes",
		d.spec.Format, d.spec.Channels, d.spec.Rate, d.spec.SampleFrames, d.bufferSize, d.pool.Len())

	return nil
}

// IsReady checks if the device is open.
func (d *Device) IsReady() bool {
	return d != nil && !d.closed && d.driver != nil
}

// Close tears down the driver and the renderer session and releases the device memory.
// Failures are logged and otherwise ignored. Close must not be called while a Write is in progress.
func (d *Device) Close() error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true

	if d.driver != nil {
		if err := d.driver.Close(); err != nil {
			d.log.Warnf("audrvClose failed: %v", err)
		}
		d.driver = nil
	}

	if d.sessionStarted {
		if err := d.renderer.Exit(); err != nil {
			d.log.Warnf("audrenExit failed: %v", err)
		}
		d.sessionStarted = false
	}

	if d.scratch != nil {
		if err := d.allocator.Free(d.scratch); err != nil {
			d.log.Warnf("Failed to free scratch buffer: %v", err)
		}
		d.scratch = nil
	}

	if err := d.pool.free(); err != nil {
		d.log.Warnf("Failed to free memory pool: %v", err)
	}
	d.pool = nil

	for i := range d.bufs {
		d.bufs[i].DataRaw = nil
	}
	d.pending = 0

	d.log.Debugf("Closed device after %d submissions", d.submitted)

	return nil
}

// ScratchBuffer returns the staging buffer callers may fill in place before calling Write.
func (d *Device) ScratchBuffer() []byte {
	if !d.IsReady() {
		return nil
	}

	return d.scratch
}

// Write submits exactly one buffer of audio and blocks until the renderer can accept the next one.
// data must be BufferSize bytes of interleaved samples in the negotiated format; it may be the scratch
// buffer itself.
func (d *Device) Write(data []byte) error {
	if !d.IsReady() {
		return ErrClosed
	}

	if len(data) != int(d.bufferSize) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(data), d.bufferSize)
	}

	if &data[0] != &d.scratch[0] {
		copy(d.scratch, data)
	}

	return d.schedule()
}

// Spec returns the negotiated stream parameters.
func (d *Device) Spec() Spec {
	return d.spec
}

// Format returns the negotiated sample format.
func (d *Device) Format() SampleFormat {
	return d.spec.Format
}

// Channels returns the number of source channels.
func (d *Device) Channels() uint32 {
	return d.spec.Channels
}

// Rate returns the sample rate in Hz.
func (d *Device) Rate() uint32 {
	return d.spec.Rate
}

// SampleFrames returns the number of frames per buffer.
func (d *Device) SampleFrames() uint32 {
	return d.spec.SampleFrames
}

// FrameSize returns the size of a single frame in bytes.
func (d *Device) FrameSize() uint32 {
	return d.frameSize
}

// BufferSize returns the size of one wave buffer, and of every Write, in bytes.
func (d *Device) BufferSize() uint32 {
	return d.bufferSize
}

// PoolSize returns the size of the memory pool shared with the renderer.
func (d *Device) PoolSize() int {
	return d.pool.Len()
}

// SlotState returns the state of a wave buffer slot.
func (d *Device) SlotState(slot int) WaveBufState {
	if slot < 0 || slot >= NUM_WAVEBUFS {
		return WAVEBUF_STATE_FREE
	}

	return d.bufs[slot].State()
}

// Stats reports counters of the playback loop.
type Stats struct {
	Submitted uint64 // Buffers handed to the voice.
	Restarts  uint64 // Times the idle voice was restarted.
	Stalls    uint64 // Writes that found both slots in flight.
}

// Stats returns counters of the playback loop.
func (d *Device) Stats() Stats {
	return Stats{
		Submitted: d.submitted,
		Restarts:  d.restarts,
		Stalls:    d.stalls,
	}
}
