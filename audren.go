// Package audren provides a double-buffered audio output pipeline on top of a fixed-latency audio renderer service.
//
// A Device negotiates a sample format supported by the renderer, carves a page-aligned memory pool into two
// alternating wave buffers, routes the source channels to the final mix and blocks the writer until one of the
// two buffers is free again. The renderer itself is an injected capability (see Renderer and Driver), so the
// same pipeline runs against hardware bindings, the software renderer in package soft, or a test fake.
package audren

import (
	"sync/atomic"
)

// SampleFormat defines the sample format requested by, or negotiated for, a Device.
// The values follow the usual bit layout: the low byte is the sample width in bits,
// bit 8 marks floating point, bit 12 marks big-endian and bit 15 marks signed samples.
type SampleFormat uint16

const (
	AUDIO_UNKNOWN SampleFormat = 0x0000
	AUDIO_U8      SampleFormat = 0x0008
	AUDIO_S8      SampleFormat = 0x8008
	AUDIO_S16LE   SampleFormat = 0x8010
	AUDIO_S16BE   SampleFormat = 0x9010
	AUDIO_S32LE   SampleFormat = 0x8020
	AUDIO_S32BE   SampleFormat = 0x9020
	AUDIO_F32LE   SampleFormat = 0x8120
	AUDIO_F32BE   SampleFormat = 0x9120

	// AUDIO_S16 is little-endian signed 16-bit, the only format the renderer voices accept.
	AUDIO_S16 = AUDIO_S16LE
)

// SampleFormatNames provides human-readable names for sample formats.
var SampleFormatNames = map[SampleFormat]string{
	AUDIO_U8:    "U8",
	AUDIO_S8:    "S8",
	AUDIO_S16LE: "S16LE",
	AUDIO_S16BE: "S16BE",
	AUDIO_S32LE: "S32LE",
	AUDIO_S32BE: "S32BE",
	AUDIO_F32LE: "F32LE",
	AUDIO_F32BE: "F32BE",
}

// String returns the name of the format.
func (f SampleFormat) String() string {
	if name, ok := SampleFormatNames[f]; ok {
		return name
	}

	return "UNKNOWN"
}

// SampleFormatToBits returns the number of bits per sample for a given format.
func SampleFormatToBits(f SampleFormat) uint32 {
	if _, ok := SampleFormatNames[f]; !ok {
		return 0
	}

	return uint32(f & 0xff)
}

// WaveBufState defines the lifecycle state of a wave buffer.
type WaveBufState int32

const (
	WAVEBUF_STATE_FREE    WaveBufState = 0 // Never submitted.
	WAVEBUF_STATE_QUEUED  WaveBufState = 1 // Submitted to a voice, not yet picked up by the renderer.
	WAVEBUF_STATE_PLAYING WaveBufState = 2 // Being consumed by the renderer.
	WAVEBUF_STATE_DONE    WaveBufState = 3 // All samples consumed, eligible for reuse.
)

// WaveBufStateNames provides human-readable names for wave buffer states.
var WaveBufStateNames = []string{
	"FREE",
	"QUEUED",
	"PLAYING",
	"DONE",
}

// String returns the name of the state.
func (s WaveBufState) String() string {
	if s >= 0 && int(s) < len(WaveBufStateNames) {
		return WaveBufStateNames[s]
	}

	return "INVALID"
}

const (
	// NUM_WAVEBUFS is the number of alternating playback buffers per device.
	NUM_WAVEBUFS = 2

	// PAGE_SIZE is the alignment of the memory pool shared with the renderer.
	PAGE_SIZE = 0x1000

	// FINAL_MIX_ID identifies the renderer's final mix stage.
	FINAL_MIX_ID = 0

	// DEFAULT_DEVICE_NAME is the name of the renderer's default output sink.
	DEFAULT_DEVICE_NAME = "MainAudioOut"

	// FINAL_MIX_CHANNELS is the number of output channels of the final mix.
	FINAL_MIX_CHANNELS = 2

	// OUTPUT_VOICE is the voice slot used for playback.
	OUTPUT_VOICE = 0
)

// WaveBuf describes one playback buffer handed to a renderer voice.
// DataRaw is the whole memory pool; the buffer covers the sample frames [StartSampleOffset, EndSampleOffset).
type WaveBuf struct {
	DataRaw           []byte
	Size              uint64 // Bytes of DataRaw covered by the pool registration.
	StartSampleOffset uint32
	EndSampleOffset   uint32

	state atomic.Int32
}

// State returns the current state of the wave buffer.
func (wb *WaveBuf) State() WaveBufState {
	return WaveBufState(wb.state.Load())
}

// SetState stores a new state. Only renderer implementations move a buffer out of WAVEBUF_STATE_QUEUED.
func (wb *WaveBuf) SetState(s WaveBufState) {
	wb.state.Store(int32(s))
}

// Bytes returns the part of DataRaw covered by the buffer's sample range.
func (wb *WaveBuf) Bytes(frameSize uint32) []byte {
	start := uint64(wb.StartSampleOffset) * uint64(frameSize)
	end := uint64(wb.EndSampleOffset) * uint64(frameSize)
	if end > uint64(len(wb.DataRaw)) || start > end {
		return nil
	}

	return wb.DataRaw[start:end]
}

// Spec describes the stream requested from, or negotiated by, a Device.
type Spec struct {
	Format       SampleFormat
	Channels     uint32
	Rate         uint32
	SampleFrames uint32 // Frames per wave buffer.
}

// FrameSize returns the size of a single frame in bytes.
func (s Spec) FrameSize() uint32 {
	return s.Channels * (SampleFormatToBits(s.Format) / 8)
}
