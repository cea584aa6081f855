package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Decoder produces interleaved integer PCM from an audio file.
type Decoder interface {
	// PCMBuffer fills buf.Data and returns the number of samples (not frames) read.
	PCMBuffer(buf *audio.IntBuffer) (n int, err error)
	Duration() (time.Duration, error)
	NumChans() uint16
	SampleRate() uint32
	BitDepth() uint16
}

// openDecoder picks a decoder by file extension.
func openDecoder(name string, r io.ReadSeeker) (Decoder, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".wav", ".wave":
		return newWavDecoder(r)
	case ".mp3":
		return newMp3Decoder(r)
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

type wavDecoder struct {
	*wav.Decoder
}

func newWavDecoder(r io.ReadSeeker) (Decoder, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	// The renderer voices only take integer PCM.
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported WAV format %d", d.WavAudioFormat)
	}

	return &wavDecoder{Decoder: d}, nil
}

func (w *wavDecoder) SampleRate() uint32 { return w.Decoder.SampleRate }
func (w *wavDecoder) NumChans() uint16   { return w.Decoder.NumChans }
func (w *wavDecoder) BitDepth() uint16   { return w.Decoder.BitDepth }

// mp3Decoder decodes to 16-bit stereo.
type mp3Decoder struct {
	decoder *mp3.Decoder
	raw     []byte
}

func newMp3Decoder(r io.Reader) (Decoder, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}

	return &mp3Decoder{decoder: d}, nil
}

func (m *mp3Decoder) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	if cap(m.raw) < len(buf.Data)*2 {
		m.raw = make([]byte, len(buf.Data)*2)
	}
	raw := m.raw[:len(buf.Data)*2]

	n, err := io.ReadFull(m.decoder, raw)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}

	samples := n / 2
	for i := 0; i < samples; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return samples, err
}

func (m *mp3Decoder) Duration() (time.Duration, error) {
	frames := m.decoder.Length() / 4
	if frames < 0 {
		return 0, errors.New("unknown mp3 length")
	}

	return time.Duration(frames) * time.Second / time.Duration(m.decoder.SampleRate()), nil
}

func (m *mp3Decoder) SampleRate() uint32 { return uint32(m.decoder.SampleRate()) }
func (m *mp3Decoder) NumChans() uint16   { return 2 }
func (m *mp3Decoder) BitDepth() uint16   { return 16 }
