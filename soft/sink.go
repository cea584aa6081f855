package soft

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink receives the rendered final mix, one frame of interleaved samples at a time.
// The samples slice is reused by the renderer after WriteFrames returns.
type Sink interface {
	WriteFrames(samples []int16, channels int) error
}

type discard struct{}

func (discard) WriteFrames([]int16, int) error { return nil }

// Discard is a sink that drops everything.
var Discard Sink = discard{}

// Memory is a sink that keeps every rendered sample.
type Memory struct {
	Samples  []int16
	Channels int
}

// WriteFrames implements Sink.
func (m *Memory) WriteFrames(samples []int16, channels int) error {
	m.Channels = channels
	m.Samples = append(m.Samples, samples...)

	return nil
}

// Frames returns the number of frames received.
func (m *Memory) Frames() int {
	if m.Channels == 0 {
		return 0
	}

	return len(m.Samples) / m.Channels
}

// Reset drops the received samples.
func (m *Memory) Reset() {
	m.Samples = m.Samples[:0]
}

// WAVSink encodes the final mix to a 16-bit PCM WAV stream.
type WAVSink struct {
	enc      *wav.Encoder
	channels int
	buf      *audio.IntBuffer
	closed   bool
}

// NewWAVSink returns a sink writing a WAV stream with the given rate and channel count to w.
// Close must be called to finalize the header.
func NewWAVSink(w io.WriteSeeker, sampleRate, channels int) *WAVSink {
	format := &audio.Format{NumChannels: channels, SampleRate: sampleRate}

	return &WAVSink{
		enc:      wav.NewEncoder(w, sampleRate, 16, channels, 1),
		channels: channels,
		buf:      &audio.IntBuffer{Format: format, SourceBitDepth: 16},
	}
}

// WriteFrames implements Sink.
func (s *WAVSink) WriteFrames(samples []int16, channels int) error {
	if s.closed {
		return errors.New("wav sink is closed")
	}

	if channels != s.channels {
		return fmt.Errorf("wav sink has %d channels, got %d", s.channels, channels)
	}

	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]

	for i, v := range samples {
		s.buf.Data[i] = int(v)
	}

	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("wav encode failed: %w", err)
	}

	return nil
}

// Close writes the final WAV header. It does not close the underlying writer.
func (s *WAVSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	return s.enc.Close()
}
